package thermal

import (
	"encoding/csv"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSVMatrix(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}

func TestCelsiusFromCounts(t *testing.T) {
	assert.InDelta(t, -273.15, celsiusFromCounts(0, 0), 1e-9)

	// 19072 counts = 298.0 K = 24.85 C
	assert.InDelta(t, 24.85, celsiusFromCounts(0x80, 0x4A), 1e-9)
}

func TestFieldStats(t *testing.T) {
	f := &TemperatureField{W: 3, H: 2, Data: []float64{
		20, 21, 19,
		22, 35, 20,
	}}
	s := f.Stats()
	assert.Equal(t, 35.0, s.Max)
	assert.Equal(t, 19.0, s.Min)
	assert.Equal(t, image.Pt(1, 1), s.MaxPos)
	assert.Equal(t, image.Pt(2, 0), s.MinPos)
	assert.InDelta(t, 137.0/6, s.Avg, 1e-9)
	assert.Equal(t, 35.0, s.Center)
	assert.Equal(t, 35.0, f.At(1, 1))
}

func TestFieldFromRaw(t *testing.T) {
	// Two pixels: 298.0 K and 0 K.
	raw := []byte{0x80, 0x4A, 0x00, 0x00}
	f := fieldFromRaw(raw, 2, 1)
	assert.InDelta(t, 24.85, f.At(0, 0), 1e-9)
	assert.InDelta(t, -273.15, f.At(1, 0), 1e-9)
}

func TestWriteTempCSV(t *testing.T) {
	dir := t.TempDir()
	f := &TemperatureField{W: 2, H: 2, Data: []float64{1.5, 2, 3, 4.25}}
	path := filepath.Join(dir, "temps.csv")
	require.NoError(t, WriteTempCSV(path, f))

	data, err := readCSVMatrix(path)
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, []string{"1.50", "2.00"}, data[0])
	assert.Equal(t, []string{"3.00", "4.25"}, data[1])
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures", "nested")
	require.NoError(t, EnsureWritableDir(dir))
	require.NoError(t, EnsureWritableDir(dir)) // idempotent
}
