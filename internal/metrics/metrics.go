// Package metrics exposes the ground station counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sources supplies the live values behind each gauge. Nil members
// simply leave their metric unregistered.
type Sources struct {
	FramesRead      func() uint64
	FramesProcessed func() uint64
	FramesDropped   func() uint64
	EncoderDropped  func() uint64
	ActiveClients   func() int
	RecordingActive func() bool
	DataFilesTotal  func() uint64
	MissionActive   func() bool
}

// Metrics holds the private registry so the exposition endpoint only
// carries our own series.
type Metrics struct {
	registry *prometheus.Registry
}

// New builds the registry from the given sources.
func New(src Sources) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	gauge := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help}, fn))
	}
	fromUint := func(fn func() uint64) func() float64 {
		return func() float64 { return float64(fn()) }
	}
	fromBool := func(fn func() bool) func() float64 {
		return func() float64 {
			if fn() {
				return 1
			}
			return 0
		}
	}

	if src.FramesRead != nil {
		gauge("groundstation_thermal_frames_read_total",
			"Total raw frames read from the thermal sensor",
			fromUint(src.FramesRead))
	}
	if src.FramesProcessed != nil {
		gauge("groundstation_thermal_frames_processed_total",
			"Total thermal frames fully processed",
			fromUint(src.FramesProcessed))
	}
	if src.FramesDropped != nil {
		gauge("groundstation_thermal_frames_dropped_total",
			"Total thermal frames dropped under back-pressure",
			fromUint(src.FramesDropped))
	}
	if src.EncoderDropped != nil {
		gauge("groundstation_encoder_frames_dropped_total",
			"Total encoded frames dropped before transport",
			fromUint(src.EncoderDropped))
	}
	if src.ActiveClients != nil {
		gauge("groundstation_rtc_active_clients",
			"Number of connected operator stations",
			func() float64 { return float64(src.ActiveClients()) })
	}
	if src.RecordingActive != nil {
		gauge("groundstation_recording_active",
			"Recording session active (0=idle, 1=recording)",
			fromBool(src.RecordingActive))
	}
	if src.DataFilesTotal != nil {
		gauge("groundstation_recording_data_files_total",
			"Raw temperature dumps written in the current session",
			fromUint(src.DataFilesTotal))
	}
	if src.MissionActive != nil {
		gauge("groundstation_mission_active",
			"Autonomous mission in flight (0=idle, 1=flying)",
			fromBool(src.MissionActive))
	}
	return m
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
