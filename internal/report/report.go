// Package report pushes periodic situation reports to the fleet
// backend: position, temperature summary, detected regions and a
// thumbnail of the current thermal view.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"github.com/citydrone/ground-station/internal/flight"
	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/internal/thermal"
)

const (
	thumbWidth  = 256
	thumbHeight = 192
	jpegQuality = 70
)

// Region is one detected area in the report payload.
type Region struct {
	X    int     `json:"x"`
	Y    int     `json:"y"`
	W    int     `json:"w"`
	H    int     `json:"h"`
	Temp float64 `json:"temp_c"`
}

// Report is the JSON document posted to the backend.
type Report struct {
	DroneID   string    `json:"drone_id"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	RelAlt    float64   `json:"rel_alt_m"`
	Heading   float64   `json:"heading_deg"`
	Speed     float64   `json:"groundspeed_ms"`
	TempMin   float64   `json:"temp_min_c"`
	TempMax   float64   `json:"temp_max_c"`
	TempAvg   float64   `json:"temp_avg_c"`
	Regions   []Region  `json:"regions"`
	Recording bool      `json:"recording"`
	Thumbnail string    `json:"thumbnail_jpeg_b64,omitempty"`
}

// Reporter periodically assembles and posts reports. A nil vehicle
// leaves the position fields zero.
type Reporter struct {
	droneID   string
	endpoint  string
	interval  time.Duration
	client    *http.Client
	pipeline  *thermal.Pipeline
	vehicle   flight.Vehicle
	recording func() bool

	failing bool
}

// NewReporter creates a reporter posting to endpoint every interval.
// droneID tags every report so the backend can tell airframes apart.
func NewReporter(droneID, endpoint string, interval time.Duration, pipeline *thermal.Pipeline,
	vehicle flight.Vehicle, recording func() bool) *Reporter {
	if recording == nil {
		recording = func() bool { return false }
	}
	return &Reporter{
		droneID:   droneID,
		endpoint:  endpoint,
		interval:  interval,
		client:    &http.Client{Timeout: 10 * time.Second},
		pipeline:  pipeline,
		vehicle:   vehicle,
		recording: recording,
	}
}

// Run posts reports until the context ends.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.push(ctx); err != nil {
				if !r.failing {
					logger.Warn("Report", "push failed: %v", err)
					r.failing = true
				}
			} else if r.failing {
				logger.Info("Report", "push recovered")
				r.failing = false
			}
		}
	}
}

func (r *Reporter) push(ctx context.Context) error {
	frame := r.pipeline.Latest()
	defer frame.Close()

	rep := r.build(frame)
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend answered %s", resp.Status)
	}
	return nil
}

func (r *Reporter) build(frame *thermal.Frame) Report {
	rep := Report{
		DroneID:   r.droneID,
		Timestamp: time.Now().UTC(),
		Recording: r.recording(),
	}
	if r.vehicle != nil {
		pos := r.vehicle.Position()
		rep.Lat, rep.Lon, rep.RelAlt = pos.Lat, pos.Lon, pos.RelAlt
		rep.Heading = r.vehicle.Heading()
		rep.Speed = r.vehicle.Groundspeed()
	}
	if frame.Err != "" {
		return rep
	}

	rep.TempMin = frame.Stats.Min
	rep.TempMax = frame.Stats.Max
	rep.TempAvg = frame.Stats.Avg
	for _, reg := range frame.Regions {
		rep.Regions = append(rep.Regions, Region{
			X:    reg.Rect.Min.X,
			Y:    reg.Rect.Min.Y,
			W:    reg.Rect.Dx(),
			H:    reg.Rect.Dy(),
			Temp: reg.Temp,
		})
	}

	if img, err := frame.Image.ToImage(); err == nil {
		if thumb, err := encodeThumbnail(img); err == nil {
			rep.Thumbnail = thumb
		} else {
			logger.Debug("Report", "thumbnail: %v", err)
		}
	}
	return rep
}

// encodeThumbnail downscales the frame and returns it as base64 JPEG.
func encodeThumbnail(src image.Image) (string, error) {
	dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
