package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/thermal"
)

func testThermalSource() *thermal.Frame {
	return &thermal.Frame{
		Image:     gocv.NewMat(),
		Timestamp: time.Now(),
		Err:       "synthetic",
		Temps: &thermal.TemperatureField{
			W: 2, H: 2, Data: []float64{20, 21, 22, 23},
		},
	}
}

func noCamera() (gocv.Mat, bool) { return gocv.Mat{}, false }

func TestRecorderStopWhenIdle(t *testing.T) {
	r := NewRecorder(t.TempDir(), testThermalSource, noCamera)
	_, err := r.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not recording")
}

func TestRecorderDoubleStart(t *testing.T) {
	r := NewRecorder(t.TempDir(), testThermalSource, noCamera)
	_, err := r.Start(1)
	require.NoError(t, err)
	defer r.Stop()

	_, err = r.Start(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already recording")
}

func TestRecorderDataFPSClamped(t *testing.T) {
	r := NewRecorder(t.TempDir(), testThermalSource, noCamera)
	st, err := r.Start(500)
	require.NoError(t, err)
	assert.Equal(t, 30.0, st.DataFPS)
	r.Stop()

	st, err = r.Start(0)
	require.NoError(t, err)
	assert.Equal(t, 0.1, st.DataFPS)
	r.Stop()
}

func TestRecorderWritesDataFiles(t *testing.T) {
	base := t.TempDir()
	r := NewRecorder(base, testThermalSource, noCamera)

	st, err := r.Start(10)
	require.NoError(t, err)
	assert.True(t, r.IsRecording())

	time.Sleep(500 * time.Millisecond)
	final, err := r.Stop()
	require.NoError(t, err)
	assert.False(t, r.IsRecording())
	assert.GreaterOrEqual(t, final.DataFiles, uint64(1))

	entries, err := os.ReadDir(filepath.Join(st.Dir, "thermal_data"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.Equal(t, "temp_data_000000.csv", entries[0].Name())
}
