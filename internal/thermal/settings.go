package thermal

import "sync"

// DetectionMode selects which side of the threshold temperature region
// detection looks at.
type DetectionMode string

const (
	DetectOver  DetectionMode = "over"
	DetectUnder DetectionMode = "under"
)

// Settings holds the mutable image-processing configuration. It is
// mutated only by the command dispatcher and read once per processed
// frame as a snapshot, so a mutation is visible within one frame.
type Settings struct {
	mu sync.Mutex

	contrast      float64       // 0.0-3.0
	blur          int           // kernel radius, >= 0
	colormap      int           // index mod NumColormaps
	rotation      int           // degrees mod 360
	labelThresh   float64       // deviation from avg before max/min labels show
	thresholdTemp float64       // region detection threshold in Celsius
	detectionMode DetectionMode // over | under
	detectRegions bool
	showHUD       bool
}

// Snapshot is an immutable copy of Settings taken once per frame.
type Snapshot struct {
	Contrast      float64
	Blur          int
	Colormap      int
	Rotation      int
	LabelThresh   float64
	ThresholdTemp float64
	DetectionMode DetectionMode
	DetectRegions bool
	ShowHUD       bool
}

// DefaultSettings mirrors the sensor's factory configuration.
func DefaultSettings() *Settings {
	return &Settings{
		contrast:      1.0,
		blur:          0,
		colormap:      0,
		rotation:      270,
		labelThresh:   2,
		thresholdTemp: 30.0,
		detectionMode: DetectOver,
		detectRegions: true,
		showHUD:       true,
	}
}

// Snapshot returns a copy of the current settings.
func (s *Settings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Contrast:      s.contrast,
		Blur:          s.blur,
		Colormap:      s.colormap,
		Rotation:      s.rotation,
		LabelThresh:   s.labelThresh,
		ThresholdTemp: s.thresholdTemp,
		DetectionMode: s.detectionMode,
		DetectRegions: s.detectRegions,
		ShowHUD:       s.showHUD,
	}
}

// SetColormap selects the false-color map by index (wraps mod NumColormaps).
func (s *Settings) SetColormap(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx %= NumColormaps
	if idx < 0 {
		idx += NumColormaps
	}
	s.colormap = idx
}

// SetContrast sets the contrast scale, clamped to [0.0, 3.0].
func (s *Settings) SetContrast(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 3 {
		v = 3
	}
	s.contrast = v
}

// SetBlur sets the blur radius (negative values clamp to zero).
func (s *Settings) SetBlur(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	s.blur = v
}

// SetRotation sets the display rotation in degrees (wraps mod 360).
func (s *Settings) SetRotation(deg int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	s.rotation = deg
}

// SetLabelThreshold sets the deviation from the average temperature
// required before the floating max/min labels are drawn.
func (s *Settings) SetLabelThreshold(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	s.labelThresh = v
}

// SetThresholdTemp sets the region-detection threshold temperature.
func (s *Settings) SetThresholdTemp(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholdTemp = v
}

// SetDetectRegions toggles region detection.
func (s *Settings) SetDetectRegions(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectRegions = v
}

// SetDetectionMode selects over/under threshold detection. Invalid
// modes are rejected.
func (s *Settings) SetDetectionMode(m DetectionMode) bool {
	if m != DetectOver && m != DetectUnder {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectionMode = m
	return true
}

// ToggleHUD flips the on-frame info panel and returns the new state.
func (s *Settings) ToggleHUD() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showHUD = !s.showHUD
	return s.showHUD
}
