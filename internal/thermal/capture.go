package thermal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/logger"
)

// CaptureResult lists the files written by a still capture. Timestamp
// is the shared filename stamp, echoed back over the protocol.
type CaptureResult struct {
	Timestamp   string
	ThermalPath string
	DataPath    string
	CameraPath  string // empty when no regular camera frame was available
}

// EnsureWritableDir creates dir if needed and verifies it is actually
// writable by probing a temp file. SD cards on the airframe flip
// read-only under brown-outs, so a plain MkdirAll is not enough.
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write_probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("dir %s not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// CaptureImages writes the current thermal frame, its raw temperature
// matrix and, when available, a regular camera frame to outputDir.
func CaptureImages(outputDir string, frame *Frame, camera *gocv.Mat) (CaptureResult, error) {
	if err := EnsureWritableDir(outputDir); err != nil {
		return CaptureResult{}, err
	}

	stamp := time.Now().Format("20060102_150405")
	res := CaptureResult{
		Timestamp:   stamp,
		ThermalPath: filepath.Join(outputDir, fmt.Sprintf("thermal_%s.png", stamp)),
	}

	if !gocv.IMWrite(res.ThermalPath, frame.Image) {
		return CaptureResult{}, fmt.Errorf("write %s failed", res.ThermalPath)
	}

	if frame.Temps != nil {
		res.DataPath = filepath.Join(outputDir, fmt.Sprintf("temp_data_%s.csv", stamp))
		if err := WriteTempCSV(res.DataPath, frame.Temps); err != nil {
			return CaptureResult{}, err
		}
	}

	if camera != nil && !camera.Empty() {
		res.CameraPath = filepath.Join(outputDir, fmt.Sprintf("camera_%s.jpg", stamp))
		if !gocv.IMWrite(res.CameraPath, *camera) {
			// Thermal capture already succeeded, keep it.
			logger.Warn("Thermal", "camera still write failed: %s", res.CameraPath)
			res.CameraPath = ""
		}
	}

	logger.Info("Thermal", "captured stills to %s", outputDir)
	return res, nil
}

// WriteTempCSV dumps a temperature field as a CSV matrix, one row per
// sensor line.
func WriteTempCSV(path string, temps *TemperatureField) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := make([]string, temps.W)
	for y := 0; y < temps.H; y++ {
		for x := 0; x < temps.W; x++ {
			row[x] = strconv.FormatFloat(temps.At(x, y), 'f', 2, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}
