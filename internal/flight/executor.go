package flight

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/citydrone/ground-station/internal/geo"
	"github.com/citydrone/ground-station/internal/logger"
)

// Executor flies waypoint lists in guided mode, one mission at a time.
type Executor struct {
	v Vehicle

	// Timing knobs, defaulted by NewExecutor. Tests shrink them.
	GuidedWait      time.Duration
	WaypointTimeout time.Duration
	PollInterval    time.Duration
	Accuracy        float64 // m

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor creates an executor for the vehicle.
func NewExecutor(v Vehicle) *Executor {
	return &Executor{
		v:               v,
		GuidedWait:      5 * time.Second,
		WaypointTimeout: 60 * time.Second,
		PollInterval:    500 * time.Millisecond,
		Accuracy:        5.0,
	}
}

// Running reports whether a mission is in flight.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// StartSurvey plans and launches a survey mission. Returns the number
// of waypoints on success.
func (e *Executor) StartSurvey(p SurveyParams) (int, error) {
	wps, err := PlanSurvey(p, e.v.Position())
	if err != nil {
		return 0, err
	}
	if err := e.launch(wps, p.Speed); err != nil {
		return 0, err
	}
	return len(wps), nil
}

// StartGoto launches a single-waypoint guided move.
func (e *Executor) StartGoto(lat, lon, alt float64) error {
	alt = geo.Clamp(alt, MinAlt, MaxAlt)
	return e.launch([]Waypoint{{Lat: lat, Lon: lon, Alt: alt}}, 0)
}

func (e *Executor) launch(wps []Waypoint, speed float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("mission already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.fly(ctx, wps, speed)
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	return nil
}

// Abort cancels the active mission, if any, and waits for the flyer
// goroutine to stand down.
func (e *Executor) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Executor) fly(ctx context.Context, wps []Waypoint, speed float64) {
	if !e.enterGuided(ctx) {
		logger.Error("Mission", "vehicle refused GUIDED mode, mission not started")
		return
	}
	if !e.v.Armed() {
		// The operator may want to rehearse on the bench.
		logger.Warn("Mission", "vehicle is not armed, flying mission anyway")
	}
	if speed > 0 {
		if err := e.v.SetGroundspeed(speed); err != nil {
			logger.Warn("Mission", "set groundspeed: %v", err)
		}
	}

	logger.Info("Mission", "flying %d waypoint(s)", len(wps))
	for i, wp := range wps {
		if ctx.Err() != nil {
			logger.Info("Mission", "mission cancelled at waypoint %d/%d", i+1, len(wps))
			return
		}
		if err := e.v.Goto(wp.Lat, wp.Lon, wp.Alt); err != nil {
			logger.Error("Mission", "goto waypoint %d: %v", i+1, err)
			return
		}
		if !e.awaitWaypoint(ctx, wp, i+1, len(wps)) {
			return
		}
	}
	logger.Info("Mission", "mission complete (%d waypoints)", len(wps))
}

// enterGuided requests GUIDED and waits for the mode to stick.
func (e *Executor) enterGuided(ctx context.Context) bool {
	if err := e.v.SetMode("GUIDED"); err != nil {
		logger.Error("Mission", "set GUIDED: %v", err)
		return false
	}
	deadline := time.Now().Add(e.GuidedWait)
	for time.Now().Before(deadline) {
		if e.v.Mode() == "GUIDED" {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return e.v.Mode() == "GUIDED"
}

// awaitWaypoint polls until the waypoint is reached. A mode change
// away from GUIDED means the pilot took over, which aborts the whole
// mission. A timeout only skips to the next waypoint.
func (e *Executor) awaitWaypoint(ctx context.Context, wp Waypoint, n, total int) bool {
	deadline := time.Now().Add(e.WaypointTimeout)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Mission", "mission cancelled en route to waypoint %d/%d", n, total)
			return false
		case <-time.After(e.PollInterval):
		}

		if mode := e.v.Mode(); mode != "GUIDED" {
			logger.Warn("Mission", "mode changed to %s, aborting mission", mode)
			return false
		}

		pos := e.v.Position()
		dist := geo.Haversine(pos.Lat, pos.Lon, wp.Lat, wp.Lon)
		if dist <= e.Accuracy && math.Abs(pos.RelAlt-wp.Alt) <= e.Accuracy {
			logger.Debug("Mission", "waypoint %d/%d reached (%.1f m)", n, total, dist)
			return true
		}
		if time.Now().After(deadline) {
			logger.Warn("Mission", "waypoint %d/%d timed out at %.1f m, skipping", n, total, dist)
			return true
		}
	}
}
