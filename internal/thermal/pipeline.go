package thermal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/logger"
)

const (
	frameQueueSize  = 10
	enqueueTimeout  = 100 * time.Millisecond
	maxOpenAttempts = 5
	openBackoffStep = 2 * time.Second
	reopenCooldown  = 30 * time.Second
	errLogLimit     = 3
)

// Device abstracts the sensor capture handle so tests can inject
// synthetic frames.
type Device interface {
	IsOpened() bool
	Read(dst *gocv.Mat) bool
	Close() error
}

// DeviceOpener opens (or reopens) the sensor.
type DeviceOpener func() (Device, error)

// OpenSensor opens the thermal camera at the given V4L2 path with RGB
// conversion disabled, so the raw YUYV image/temperature stream comes
// through untouched.
func OpenSensor(path string) (Device, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open thermal sensor %s: %w", path, err)
	}
	cap.Set(gocv.VideoCaptureConvertRGB, 0)
	return cap, nil
}

// Pipeline owns the sensor reader and frame processor goroutines and
// publishes the most recent processed frame.
type Pipeline struct {
	settings *Settings
	opener   DeviceOpener

	// Reconnect tunables, adjustable before Start. Open attempt n
	// backs off n*OpenBackoff; exhausting maxOpenAttempts sleeps
	// ReopenCooldown and resets the counter.
	OpenBackoff    time.Duration
	ReopenCooldown time.Duration

	frames chan gocv.Mat
	wg     sync.WaitGroup

	mu     sync.Mutex
	latest *Frame

	framesIn      atomic.Uint64
	framesOut     atomic.Uint64
	framesDropped atomic.Uint64

	errMu     sync.Mutex
	errCounts map[string]int
}

// NewPipeline creates a pipeline reading from opener with the given
// settings.
func NewPipeline(settings *Settings, opener DeviceOpener) *Pipeline {
	return &Pipeline{
		settings:       settings,
		opener:         opener,
		OpenBackoff:    openBackoffStep,
		ReopenCooldown: reopenCooldown,
		frames:         make(chan gocv.Mat, frameQueueSize),
		errCounts:      make(map[string]int),
	}
}

// Settings returns the shared settings instance.
func (p *Pipeline) Settings() *Settings { return p.settings }

// Start launches the reader and processor workers. They run until the
// context is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.readLoop(ctx)
	go p.processLoop(ctx)
}

// Wait blocks until both workers have exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	if p.latest != nil {
		p.latest.Close()
		p.latest = nil
	}
	p.mu.Unlock()
}

// Counters reports frames read, frames processed and frames dropped
// under back-pressure.
func (p *Pipeline) Counters() (in, out, dropped uint64) {
	return p.framesIn.Load(), p.framesOut.Load(), p.framesDropped.Load()
}

// Latest returns a copy of the most recent processed frame. Before the
// first frame arrives it returns a placeholder. The caller owns the
// returned frame and must Close it.
func (p *Pipeline) Latest() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest != nil {
		return p.latest.Clone()
	}
	return placeholderFrame("Waiting for thermal data...")
}

// readLoop keeps the sensor open and feeds raw captures into the
// bounded frame queue. A full queue drops the frame rather than stall
// the sensor.
func (p *Pipeline) readLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.frames)

	var dev Device
	defer func() {
		if dev != nil {
			dev.Close()
		}
	}()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if dev == nil {
			d, err := p.opener()
			if err != nil || !d.IsOpened() {
				if err == nil {
					d.Close()
					err = fmt.Errorf("sensor not opened")
				}
				attempts++
				if attempts >= maxOpenAttempts {
					logger.Warn("Thermal", "sensor unavailable after %d attempts, retrying in %s: %v",
						attempts, p.ReopenCooldown, err)
					if !sleepCtx(ctx, p.ReopenCooldown) {
						return
					}
					attempts = 0
					continue
				}
				logger.Warn("Thermal", "sensor open failed (attempt %d/%d): %v",
					attempts, maxOpenAttempts, err)
				if !sleepCtx(ctx, time.Duration(attempts)*p.OpenBackoff) {
					return
				}
				continue
			}
			dev = d
			attempts = 0
			logger.Info("Thermal", "sensor opened")
		}

		buf := gocv.NewMat()
		if !dev.Read(&buf) || buf.Empty() {
			buf.Close()
			dev.Close()
			dev = nil
			logger.Warn("Thermal", "sensor read failed, reopening")
			continue
		}
		p.framesIn.Add(1)

		select {
		case p.frames <- buf:
		case <-time.After(enqueueTimeout):
			buf.Close()
			p.framesDropped.Add(1)
		case <-ctx.Done():
			buf.Close()
			return
		}
	}
}

// processLoop consumes raw captures, runs the processing chain with a
// settings snapshot per frame and publishes the result.
func (p *Pipeline) processLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain whatever the reader managed to enqueue.
			for raw := range p.frames {
				raw.Close()
			}
			return
		case raw, ok := <-p.frames:
			if !ok {
				return
			}
			frame, err := processFrame(raw, p.settings.Snapshot())
			raw.Close()
			if err != nil {
				p.noteError(err)
				// Consumers see the failure, not a frozen last image.
				p.publish(placeholderFrame(err.Error()))
				continue
			}
			p.framesOut.Add(1)
			p.resetErrors()
			p.publish(frame)
		}
	}
}

// publish swaps frame in as the latest, releasing the previous one.
func (p *Pipeline) publish(frame *Frame) {
	p.mu.Lock()
	old := p.latest
	p.latest = frame
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// noteError logs a processing error, muting repeats of the same error
// after a few occurrences.
func (p *Pipeline) noteError(err error) {
	key := err.Error()
	p.errMu.Lock()
	p.errCounts[key]++
	n := p.errCounts[key]
	p.errMu.Unlock()

	if n < errLogLimit {
		logger.Error("Thermal", "frame processing failed: %v", err)
	} else if n == errLogLimit {
		logger.Error("Thermal", "frame processing failed: %v (muting repeats)", err)
	}
}

func (p *Pipeline) resetErrors() {
	p.errMu.Lock()
	if len(p.errCounts) > 0 {
		p.errCounts = make(map[string]int)
	}
	p.errMu.Unlock()
}

// sleepCtx sleeps for d, returning false if the context was cancelled
// first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
