package main

import (
	"context"
	"encoding/json"
	"flag"
	"image"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/camera"
	"github.com/citydrone/ground-station/internal/command"
	"github.com/citydrone/ground-station/internal/encoder"
	"github.com/citydrone/ground-station/internal/flight"
	"github.com/citydrone/ground-station/internal/h264"
	"github.com/citydrone/ground-station/internal/led"
	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/internal/metrics"
	"github.com/citydrone/ground-station/internal/report"
	"github.com/citydrone/ground-station/internal/rtc"
	"github.com/citydrone/ground-station/internal/thermal"
)

var (
	// Command-line flags
	thermalDev   = flag.String("thermal-device", "/dev/video0", "Thermal sensor V4L2 device")
	thermalIdx   = flag.Int("thermal-index", 0, "V4L2 index of the thermal sensor (excluded from camera probing)")
	cameraMaxIdx = flag.Int("camera-max-index", 4, "Highest V4L2 index probed for the regular camera")
	httpAddr     = flag.String("http", ":8081", "HTTP signaling server address")
	metricsAddr  = flag.String("metrics", ":9090", "Metrics server address")
	pprofAddr    = flag.String("pprof", ":6060", "pprof server address")
	recordPath   = flag.String("record-path", "./recordings", "Recording session output path")
	capturePath  = flag.String("capture-path", "./captures", "Still capture output path")
	maxClients   = flag.Int("max-clients", 4, "Maximum WebRTC clients")
	stunServers  = flag.String("stun", "stun:stun.l.google.com:19302", "STUN server URLs (comma-separated)")
	serialPort   = flag.String("serial", "/dev/ttyACM0", "Autopilot serial port")
	serialBaud   = flag.Int("baud", 57600, "Autopilot serial baud rate")
	simVehicle   = flag.Bool("sim", false, "Use a simulated vehicle instead of the serial link")
	ledDevice    = flag.String("led", "", "SPI device for the LED strip (empty disables)")
	ledCount     = flag.Int("led-count", 8, "Number of LEDs on the strip")
	reportURL    = flag.String("report-url", "", "Fleet backend report endpoint (empty disables)")
	reportEvery  = flag.Duration("report-interval", 30*time.Second, "Report push interval")
	droneID      = flag.String("drone-id", "", "Drone identifier in fleet reports (default: hostname)")
	logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
)

// The camera track is normalized to a fixed size so the encoder sees
// consistent input regardless of the attached device.
const (
	cameraWidth  = 640
	cameraHeight = 480
)

// Server owns every subsystem of the ground station process.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pipeline     *thermal.Pipeline
	cameras      *camera.Manager
	recorder     *camera.Recorder
	vehicle      flight.Vehicle
	executor     *flight.Executor
	dispatcher   *command.Dispatcher
	rtcServer    *rtc.Server
	encoder      *encoder.Encoder
	processor    *h264.Processor
	camEncoder   *encoder.Encoder
	camProcessor *h264.Processor
	leds         led.Controller
	reporter     *report.Reporter
	metrics      *metrics.Metrics
	httpServer   *http.Server
}

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)
	logger.Info("Main", "Ground station starting...")

	for _, dir := range []string{*recordPath, *capturePath} {
		if err := thermal.EnsureWritableDir(dir); err != nil {
			log.Fatalf("Output directory: %v", err)
		}
	}

	srv, err := NewServer()
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	srv.Shutdown()
	logger.Info("Main", "Ground station stopped")
}

// NewServer wires all subsystems together.
func NewServer() (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{ctx: ctx, cancel: cancel}

	// Regular camera, excluding the thermal sensor's index.
	s.cameras = camera.NewManager(*thermalIdx, *cameraMaxIdx)

	// Thermal pipeline. The fixed path is tried first; a missing or
	// renumbered device falls back to an index scan that skips
	// whatever the regular camera currently occupies.
	dev := *thermalDev
	s.pipeline = thermal.NewPipeline(thermal.DefaultSettings(), func() (thermal.Device, error) {
		return thermal.FindSensor(dev, s.cameras.Index())
	})

	s.recorder = camera.NewRecorder(*recordPath,
		s.pipeline.Latest,
		s.cameras.Frame)

	// Autopilot link. A missing airframe is not fatal: the thermal
	// stream is useful on the bench too.
	var gimbal *flight.Gimbal
	if *simVehicle {
		s.vehicle = flight.NewSimVehicle(0, 0)
		logger.Info("Main", "using simulated vehicle")
	} else {
		v, err := flight.DialSerial(*serialPort, *serialBaud)
		if err != nil {
			logger.Warn("Main", "no autopilot link: %v", err)
		} else {
			s.vehicle = v
		}
	}
	if s.vehicle != nil {
		s.executor = flight.NewExecutor(s.vehicle)
		gimbal = flight.NewGimbal(s.vehicle)
	}

	// LED strip.
	if *ledDevice != "" {
		strip, err := led.OpenStrip(*ledDevice, *ledCount)
		if err != nil {
			logger.Warn("Main", "led strip unavailable: %v", err)
		} else {
			s.leds = strip
		}
	}

	// Command dispatcher and WebRTC transport reference each other:
	// replies go out on the data channel the commands come in on.
	s.dispatcher = command.NewDispatcher(command.Config{
		Pipeline:   s.pipeline,
		Cameras:    s.cameras,
		Recorder:   s.recorder,
		Vehicle:    s.vehicle,
		Executor:   s.executor,
		Gimbal:     gimbal,
		LED:        s.leds,
		CaptureDir: *capturePath,
		Send:       func(msg string) { s.rtcServer.SendText(msg) },
	})
	s.rtcServer = rtc.NewServer(strings.Split(*stunServers, ","), *maxClients, s.dispatcher.HandleRaw)

	enc, err := encoder.New(thermal.DisplayWidth, thermal.DisplayHeight, 30)
	if err != nil {
		cancel()
		return nil, err
	}
	s.encoder = enc
	s.processor = h264.NewProcessor()

	camEnc, err := encoder.New(cameraWidth, cameraHeight, 30)
	if err != nil {
		enc.Close()
		cancel()
		return nil, err
	}
	s.camEncoder = camEnc
	s.camProcessor = h264.NewProcessor()

	if *reportURL != "" {
		id := *droneID
		if id == "" {
			id, _ = os.Hostname()
		}
		s.reporter = report.NewReporter(id, *reportURL, *reportEvery,
			s.pipeline, s.vehicle, s.recorder.IsRecording)
	}

	s.metrics = metrics.New(metrics.Sources{
		FramesRead:      func() uint64 { in, _, _ := s.pipeline.Counters(); return in },
		FramesProcessed: func() uint64 { _, out, _ := s.pipeline.Counters(); return out },
		FramesDropped:   func() uint64 { _, _, d := s.pipeline.Counters(); return d },
		EncoderDropped: func() uint64 {
			return s.encoder.Dropped() + s.camEncoder.Dropped()
		},
		ActiveClients:   s.rtcServer.ClientCount,
		RecordingActive: s.recorder.IsRecording,
		DataFilesTotal:  func() uint64 { return s.recorder.Status().DataFiles },
		MissionActive: func() bool {
			return s.executor != nil && s.executor.Running()
		},
	})

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.httpServer = &http.Server{Addr: *httpAddr, Handler: mux}

	return s, nil
}

// Start launches every worker.
func (s *Server) Start() error {
	logger.Info("Main", "  thermal sensor: %s", *thermalDev)
	logger.Info("Main", "  signaling:      %s", *httpAddr)
	logger.Info("Main", "  metrics:        %s", *metricsAddr)
	logger.Info("Main", "  recordings:     %s", *recordPath)

	go func() {
		if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
			logger.Warn("Main", "pprof server: %v", err)
		}
	}()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Warn("Main", "metrics server: %v", err)
		}
	}()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Main", "http server: %v", err)
		}
	}()

	s.pipeline.Start(s.ctx)

	s.wg.Add(4)
	go s.feedEncoder()
	go s.fanOutVideo()
	go s.feedCameraEncoder()
	go s.fanOutCameraVideo()

	go s.dispatcher.Run(s.ctx)
	if s.reporter != nil {
		go s.reporter.Run(s.ctx)
	}

	logger.Info("Main", "Ground station started")
	return nil
}

// feedEncoder pushes the latest display frame into the encoder at the
// stream rate. With no viewers and no recording it idles to spare the
// airframe's CPU and battery.
func (s *Server) feedEncoder() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.rtcServer.ClientCount() == 0 {
				continue
			}
			frame := s.pipeline.Latest()
			if err := s.encoder.WriteFrame(frame.Image); err != nil {
				logger.Warn("Main", "encoder feed: %v", err)
			}
			frame.Close()
		}
	}
}

// fanOutVideo forwards encoded frames to the WebRTC clients, keeping
// the stream header cache warm for late joiners.
func (s *Server) fanOutVideo() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.encoder.Frames():
			if !ok {
				return
			}
			s.processor.Scan(frame)
			if frame.IsIDR {
				frame.Data = s.processor.PrependHeaders(frame.Data)
			}
			s.rtcServer.SendFrame(frame)
		}
	}
}

// feedCameraEncoder streams the regular camera when it is present.
// Unavailable hardware just means no camera track output; the thermal
// stream is unaffected.
func (s *Server) feedCameraEncoder() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.rtcServer.ClientCount() == 0 {
				continue
			}
			img, ok := s.cameras.Frame()
			if !ok {
				continue
			}
			if img.Cols() != cameraWidth || img.Rows() != cameraHeight {
				gocv.Resize(img, &img, image.Pt(cameraWidth, cameraHeight), 0, 0, gocv.InterpolationLinear)
			}
			if err := s.camEncoder.WriteFrame(img); err != nil {
				logger.Warn("Main", "camera encoder feed: %v", err)
			}
			img.Close()
		}
	}
}

func (s *Server) fanOutCameraVideo() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.camEncoder.Frames():
			if !ok {
				return
			}
			s.camProcessor.Scan(frame)
			if frame.IsIDR {
				frame.Data = s.camProcessor.PrependHeaders(frame.Data)
			}
			s.rtcServer.SendCameraFrame(frame)
		}
	}
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/offer", s.rtcServer.OfferHandler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	in, out, dropped := s.pipeline.Counters()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "ok",
		"rtc_clients":      s.rtcServer.ClientCount(),
		"recording":        s.recorder.IsRecording(),
		"vehicle":          s.vehicle != nil,
		"camera":           s.cameras.Availability().String(),
		"frames_read":      in,
		"frames_processed": out,
		"frames_dropped":   dropped,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.recorder.Status())
}

// Shutdown stops everything in dependency order.
func (s *Server) Shutdown() {
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(shutdownCtx)

	if s.executor != nil {
		s.executor.Abort()
	}
	if s.recorder.IsRecording() {
		if _, err := s.recorder.Stop(); err != nil {
			logger.Warn("Main", "stop recording: %v", err)
		}
	}

	s.encoder.Close()
	s.camEncoder.Close()
	s.wg.Wait()
	s.rtcServer.Close()
	s.pipeline.Wait()
	s.cameras.Close()

	if s.vehicle != nil {
		s.vehicle.Close()
	}
	if s.leds != nil {
		s.leds.Close()
	}
}
