package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/geo"
	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/internal/thermal"
)

const (
	videoFPS    = 30.0
	minDataFPS  = 0.1
	maxDataFPS  = 30.0
	stopTimeout = 5 * time.Second
)

// ThermalSource supplies the latest processed thermal frame. The
// recorder owns (and closes) every frame it receives.
type ThermalSource func() *thermal.Frame

// CameraSource supplies the latest regular camera frame, if any.
type CameraSource func() (gocv.Mat, bool)

// Status reports a recording session. Stamp is the session start time
// in the compact form used in filenames and protocol replies.
type Status struct {
	SessionID     string
	Stamp         string
	Dir           string
	DataFPS       float64
	ThermalFrames uint64
	CameraFrames  uint64
	DataFiles     uint64
	Started       time.Time
	Duration      time.Duration
}

// Recorder writes synchronized thermal video, camera video and raw
// temperature dumps for one session at a time.
type Recorder struct {
	mu sync.Mutex

	basePath   string
	thermalSrc ThermalSource
	cameraSrc  CameraSource

	recording bool
	sessionID string
	stamp     string
	dir       string
	dataFPS   float64
	started   time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	thermalFrames atomic.Uint64
	cameraFrames  atomic.Uint64
	dataFiles     atomic.Uint64
}

// NewRecorder creates a recorder writing sessions under basePath.
func NewRecorder(basePath string, thermalSrc ThermalSource, cameraSrc CameraSource) *Recorder {
	return &Recorder{
		basePath:   basePath,
		thermalSrc: thermalSrc,
		cameraSrc:  cameraSrc,
	}
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start begins a new session. dataFPS is the raw temperature dump
// rate, clamped to [0.1, 30].
func (r *Recorder) Start(dataFPS float64) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return Status{}, fmt.Errorf("already recording")
	}

	dataFPS = geo.Clamp(dataFPS, minDataFPS, maxDataFPS)

	sessionID := uuid.NewString()[:8]
	stamp := time.Now().Format("20060102_150405")
	dir := filepath.Join(r.basePath, fmt.Sprintf("session_%s_%s", stamp, sessionID))
	if err := thermal.EnsureWritableDir(filepath.Join(dir, "thermal_data")); err != nil {
		return Status{}, fmt.Errorf("prepare session dir: %w", err)
	}

	r.recording = true
	r.sessionID = sessionID
	r.stamp = stamp
	r.dir = dir
	r.dataFPS = dataFPS
	r.started = time.Now()
	r.thermalFrames.Store(0)
	r.cameraFrames.Store(0)
	r.dataFiles.Store(0)
	r.stop = make(chan struct{})

	r.wg.Add(3)
	go r.thermalLoop()
	go r.cameraLoop()
	go r.dataLoop()

	logger.Info("Recorder", "session %s started (data %.1f fps) in %s", sessionID, dataFPS, dir)
	return r.statusLocked(), nil
}

// Stop ends the active session and waits for the writers to drain.
func (r *Recorder) Stop() (Status, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Status{}, fmt.Errorf("not recording")
	}
	close(r.stop)
	r.recording = false
	status := r.statusLocked()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.Warn("Recorder", "session %s writers did not drain within %s", status.SessionID, stopTimeout)
		return status, fmt.Errorf("recorder stop timed out")
	}

	logger.Info("Recorder", "session %s stopped: %d thermal, %d camera, %d data files",
		status.SessionID, r.thermalFrames.Load(), r.cameraFrames.Load(), r.dataFiles.Load())
	return r.Status(), nil
}

// Status returns a snapshot of the current (or last) session.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() Status {
	s := Status{
		SessionID:     r.sessionID,
		Stamp:         r.stamp,
		Dir:           r.dir,
		DataFPS:       r.dataFPS,
		ThermalFrames: r.thermalFrames.Load(),
		CameraFrames:  r.cameraFrames.Load(),
		DataFiles:     r.dataFiles.Load(),
		Started:       r.started,
	}
	if !r.started.IsZero() {
		s.Duration = time.Since(r.started)
	}
	return s
}

// pace sleeps until the next frame deadline. Deadlines accumulate from
// the previous one rather than from now, so the effective rate does
// not drift with write latency. Returns false when the session stops.
func (r *Recorder) pace(next *time.Time, interval time.Duration) bool {
	select {
	case <-r.stop:
		return false
	case <-time.After(time.Until(*next)):
	}
	*next = next.Add(interval)
	if time.Until(*next) < 0 {
		// Writer fell behind a full interval, resync.
		*next = time.Now().Add(interval)
	}
	return true
}

func (r *Recorder) thermalLoop() {
	defer r.wg.Done()

	path := filepath.Join(r.dir, "thermal_video.mp4")
	writer, err := gocv.VideoWriterFile(path, "mp4v", videoFPS,
		thermal.DisplayWidth, thermal.DisplayHeight, true)
	if err != nil {
		logger.Error("Recorder", "open %s: %v", path, err)
		return
	}
	defer writer.Close()

	interval := time.Duration(float64(time.Second) / videoFPS)
	next := time.Now().Add(interval)
	for r.pace(&next, interval) {
		frame := r.thermalSrc()
		if frame.Err == "" {
			if err := writer.Write(frame.Image); err == nil {
				r.thermalFrames.Add(1)
			}
		}
		frame.Close()
	}
}

func (r *Recorder) cameraLoop() {
	defer r.wg.Done()

	// Opened lazily: frame dimensions are unknown until the first
	// successful read, and the camera may be absent entirely.
	var writer *gocv.VideoWriter
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	interval := time.Duration(float64(time.Second) / videoFPS)
	next := time.Now().Add(interval)
	for r.pace(&next, interval) {
		img, ok := r.cameraSrc()
		if !ok {
			continue
		}
		if writer == nil {
			path := filepath.Join(r.dir, "camera_video.mp4")
			w, err := gocv.VideoWriterFile(path, "mp4v", videoFPS, img.Cols(), img.Rows(), true)
			if err != nil {
				logger.Error("Recorder", "open %s: %v", path, err)
				img.Close()
				return
			}
			writer = w
		}
		if err := writer.Write(img); err == nil {
			r.cameraFrames.Add(1)
		}
		img.Close()
	}
}

func (r *Recorder) dataLoop() {
	defer r.wg.Done()

	dataDir := filepath.Join(r.dir, "thermal_data")
	interval := time.Duration(float64(time.Second) / r.dataFPS)
	next := time.Now().Add(interval)
	for r.pace(&next, interval) {
		frame := r.thermalSrc()
		if frame.Temps != nil {
			n := r.dataFiles.Load()
			path := filepath.Join(dataDir, fmt.Sprintf("temp_data_%06d.csv", n))
			if err := thermal.WriteTempCSV(path, frame.Temps); err != nil {
				logger.Error("Recorder", "write %s: %v", path, err)
				os.Remove(path)
			} else {
				r.dataFiles.Add(1)
			}
		}
		frame.Close()
	}
}
