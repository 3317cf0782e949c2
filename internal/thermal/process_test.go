package thermal

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	ambientCounts = 18752 // 19.85 C
	hotCounts     = 20032 // 39.85 C
)

// syntheticRaw builds a raw sensor capture: gray YUYV image on top,
// a flat temperature field with an optional hot rectangle below.
func syntheticRaw(t *testing.T, hotRect image.Rectangle) gocv.Mat {
	t.Helper()
	buf := make([]byte, SensorWidth*SensorHeight*2*2)
	for i := 0; i < SensorWidth*SensorHeight; i++ {
		buf[2*i] = 128
		buf[2*i+1] = 128
	}
	off := SensorWidth * SensorHeight * 2
	for y := 0; y < SensorHeight; y++ {
		for x := 0; x < SensorWidth; x++ {
			v := uint16(ambientCounts)
			if image.Pt(x, y).In(hotRect) {
				v = hotCounts
			}
			i := off + (y*SensorWidth+x)*2
			buf[i] = byte(v)
			buf[i+1] = byte(v >> 8)
		}
	}
	m, err := gocv.NewMatFromBytes(SensorHeight*2, SensorWidth, gocv.MatTypeCV8UC2, buf)
	require.NoError(t, err)
	return m
}

func TestProcessFrameBasics(t *testing.T) {
	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	defer raw.Close()

	frame, err := processFrame(raw, DefaultSettings().Snapshot())
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, DisplayWidth, frame.Image.Cols())
	assert.Equal(t, DisplayHeight, frame.Image.Rows())
	assert.Equal(t, "Jet", frame.Colormap)
	assert.InDelta(t, 39.85, frame.Stats.Max, 1e-6)
	assert.InDelta(t, 19.85, frame.Stats.Min, 1e-6)
	assert.True(t, frame.Stats.MaxPos.In(image.Rect(50, 60, 70, 80)))
}

func TestProcessFrameDetectsHotRegion(t *testing.T) {
	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	defer raw.Close()

	frame, err := processFrame(raw, DefaultSettings().Snapshot())
	require.NoError(t, err)
	defer frame.Close()

	require.Len(t, frame.Regions, 1)
	assert.InDelta(t, 39.85, frame.Regions[0].Temp, 0.5)
}

func TestProcessFrameDetectionOff(t *testing.T) {
	s := DefaultSettings()
	s.SetDetectRegions(false)

	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	defer raw.Close()

	frame, err := processFrame(raw, s.Snapshot())
	require.NoError(t, err)
	defer frame.Close()
	assert.Empty(t, frame.Regions)
}

func TestProcessFrameUnderMode(t *testing.T) {
	s := DefaultSettings()
	require.True(t, s.SetDetectionMode(DetectUnder))

	// Everything is under 30 C except the hot patch, so the ambient
	// area forms the detected region.
	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	defer raw.Close()

	frame, err := processFrame(raw, s.Snapshot())
	require.NoError(t, err)
	defer frame.Close()
	require.NotEmpty(t, frame.Regions)
}

func TestProcessFrameBadGeometry(t *testing.T) {
	bad := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC2)
	defer bad.Close()

	_, err := processFrame(bad, DefaultSettings().Snapshot())
	assert.Error(t, err)
}
