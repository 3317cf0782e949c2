package thermal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsDefaults(t *testing.T) {
	s := DefaultSettings().Snapshot()
	assert.Equal(t, 1.0, s.Contrast)
	assert.Equal(t, 0, s.Blur)
	assert.Equal(t, 0, s.Colormap)
	assert.Equal(t, 270, s.Rotation)
	assert.Equal(t, 30.0, s.ThresholdTemp)
	assert.Equal(t, DetectOver, s.DetectionMode)
	assert.True(t, s.DetectRegions)
	assert.True(t, s.ShowHUD)
}

func TestSettingsClamping(t *testing.T) {
	s := DefaultSettings()

	s.SetContrast(9.5)
	assert.Equal(t, 3.0, s.Snapshot().Contrast)
	s.SetContrast(-1)
	assert.Equal(t, 0.0, s.Snapshot().Contrast)

	s.SetBlur(-4)
	assert.Equal(t, 0, s.Snapshot().Blur)

	s.SetRotation(450)
	assert.Equal(t, 90, s.Snapshot().Rotation)
	s.SetRotation(-90)
	assert.Equal(t, 270, s.Snapshot().Rotation)

	s.SetColormap(NumColormaps + 3)
	assert.Equal(t, 3, s.Snapshot().Colormap)
}

func TestSettingsDetectionMode(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.SetDetectionMode(DetectUnder))
	assert.Equal(t, DetectUnder, s.Snapshot().DetectionMode)
	assert.False(t, s.SetDetectionMode("sideways"))
	assert.Equal(t, DetectUnder, s.Snapshot().DetectionMode)
}

func TestToggleHUD(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.ToggleHUD())
	assert.True(t, s.ToggleHUD())
}

func TestColormapNames(t *testing.T) {
	assert.Equal(t, "Jet", ColormapName(0))
	assert.Equal(t, "Inferno", ColormapName(3))
	assert.Equal(t, "Inv Rainbow", ColormapName(10))
	assert.Equal(t, "Jet", ColormapName(NumColormaps))
}
