package thermal

import (
	"image"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sensor geometry. The sensor delivers a 256x192 YUYV frame whose two
// interleaved halves carry the visual image and the raw temperature
// counts. Display output is upscaled by ScaleFactor.
const (
	SensorWidth  = 256
	SensorHeight = 192
	ScaleFactor  = 3

	DisplayWidth  = SensorWidth * ScaleFactor
	DisplayHeight = SensorHeight * ScaleFactor
)

// TemperatureField is a per-pixel temperature matrix in Celsius at
// sensor resolution. Immutable once built, safe to share across
// goroutines.
type TemperatureField struct {
	W, H int
	Data []float64 // row-major, len == W*H
}

// At returns the temperature at sensor pixel (x, y).
func (f *TemperatureField) At(x, y int) float64 {
	return f.Data[y*f.W+x]
}

// Stats holds summary temperature statistics for one frame. Center is
// the temperature under the sensor's middle pixel.
type Stats struct {
	Min, Max, Avg float64
	Center        float64
	MinPos        image.Point // sensor coordinates
	MaxPos        image.Point
}

// celsiusFromCounts converts a raw 16-bit sensor count to Celsius.
func celsiusFromCounts(lo, hi byte) float64 {
	return (float64(lo)+float64(hi)*256)/64 - 273.15
}

// fieldFromRaw decodes the temperature half of a raw sensor frame. The
// raw buffer is the YUYV byte stream of the lower half of the capture,
// two bytes per pixel.
func fieldFromRaw(raw []byte, w, h int) *TemperatureField {
	f := &TemperatureField{W: w, H: h, Data: make([]float64, w*h)}
	for i := 0; i < w*h; i++ {
		f.Data[i] = celsiusFromCounts(raw[2*i], raw[2*i+1])
	}
	return f
}

// Stats computes min/max/avg and their positions.
func (f *TemperatureField) Stats() Stats {
	iMin := floats.MinIdx(f.Data)
	iMax := floats.MaxIdx(f.Data)
	return Stats{
		Min:    f.Data[iMin],
		Max:    f.Data[iMax],
		Avg:    stat.Mean(f.Data, nil),
		Center: f.At(f.W/2, f.H/2),
		MinPos: image.Pt(iMin%f.W, iMin/f.W),
		MaxPos: image.Pt(iMax%f.W, iMax/f.W),
	}
}
