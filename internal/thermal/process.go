package thermal

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gocv.io/x/gocv"
)

// MinRegionArea is the smallest contour area (in display pixels) kept
// by region detection.
const MinRegionArea = 100.0

// Region is one detected hot/cold area in display coordinates.
type Region struct {
	Rect image.Rectangle
	Temp float64 // temperature at the region center
}

// Frame is one fully processed display frame. Image is owned by the
// frame; whoever holds the frame last must Close it.
type Frame struct {
	Image     gocv.Mat
	Temps     *TemperatureField
	Stats     Stats
	Regions   []Region
	Timestamp time.Time
	Colormap  string
	Err       string // set on placeholder/error frames
}

// Close releases the frame's pixel data.
func (f *Frame) Close() {
	if f != nil && !f.Image.Empty() {
		f.Image.Close()
	}
}

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() *Frame {
	out := *f
	out.Image = f.Image.Clone()
	return &out
}

var (
	white = color.RGBA{R: 255, G: 255, B: 255}
	red   = color.RGBA{R: 255}
	blue  = color.RGBA{B: 255}
	green = color.RGBA{G: 255}
)

// processFrame turns a raw sensor capture into a display frame. The
// raw Mat is the combined capture: the top half carries the YUYV
// visual image, the bottom half the 16-bit temperature counts.
func processFrame(raw gocv.Mat, cfg Snapshot) (*Frame, error) {
	if raw.Rows() != SensorHeight*2 || raw.Cols() != SensorWidth || raw.Channels() != 2 {
		return nil, fmt.Errorf("unexpected sensor frame geometry %dx%dx%d",
			raw.Cols(), raw.Rows(), raw.Channels())
	}

	rawBytes := raw.ToBytes()
	temps := fieldFromRaw(rawBytes[SensorHeight*SensorWidth*2:], SensorWidth, SensorHeight)
	stats := temps.Stats()

	// Visual half to BGR.
	top := raw.Region(image.Rect(0, 0, SensorWidth, SensorHeight))
	defer top.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(top, &bgr, gocv.ColorYUVToBGRYUY2)

	// Contrast, upscale, blur, palette.
	scaled := gocv.NewMat()
	defer scaled.Close()
	bgr.ConvertToWithParams(&scaled, gocv.MatTypeCV8U, float32(cfg.Contrast), 0)

	display := gocv.NewMat()
	gocv.Resize(scaled, &display, image.Pt(DisplayWidth, DisplayHeight), 0, 0, gocv.InterpolationCubic)

	if cfg.Blur > 0 {
		gocv.Blur(display, &display, image.Pt(cfg.Blur, cfg.Blur))
	}

	cm := colormaps[cfg.Colormap%NumColormaps]
	gocv.ApplyColorMap(display, &display, cm.id)
	if cm.invert {
		gocv.CvtColor(display, &display, gocv.ColorBGRToRGB)
	}

	// One affine matrix rotates the image, the annotation points and
	// the temperature field, so overlays stay aligned.
	center := image.Pt(DisplayWidth/2, DisplayHeight/2)
	rot := newRotationMatrix(center, float64(cfg.Rotation), 1.0)
	if cfg.Rotation != 0 {
		m := rot.mat()
		gocv.WarpAffine(display, &display, m, image.Pt(DisplayWidth, DisplayHeight))
		m.Close()
	}

	frame := &Frame{
		Image:     display,
		Temps:     temps,
		Stats:     stats,
		Timestamp: time.Now(),
		Colormap:  cm.name,
	}

	if cfg.DetectRegions {
		frame.Regions = detectRegions(temps, cfg, rot)
		drawRegions(&frame.Image, frame.Regions)
	}

	drawCrosshair(&frame.Image, stats, rot)
	drawSpotLabels(&frame.Image, stats, cfg, rot)
	if cfg.ShowHUD {
		drawHUD(&frame.Image, stats, cfg, cm.name)
	}

	return frame, nil
}

// toDisplay maps a sensor-space point into rotated display space.
func toDisplay(p image.Point, rot rotationMatrix) image.Point {
	return rot.apply(image.Pt(p.X*ScaleFactor, p.Y*ScaleFactor))
}

// detectRegions thresholds the temperature field, upscales and rotates
// the mask with the display transform and extracts the outer contours.
func detectRegions(temps *TemperatureField, cfg Snapshot, rot rotationMatrix) []Region {
	maskBytes := make([]byte, len(temps.Data))
	for i, v := range temps.Data {
		hit := v > cfg.ThresholdTemp
		if cfg.DetectionMode == DetectUnder {
			hit = v < cfg.ThresholdTemp
		}
		if hit {
			maskBytes[i] = 255
		}
	}
	mask, err := gocv.NewMatFromBytes(temps.H, temps.W, gocv.MatTypeCV8U, maskBytes)
	if err != nil {
		return nil
	}
	defer mask.Close()

	scaledMask := gocv.NewMat()
	defer scaledMask.Close()
	gocv.Resize(mask, &scaledMask, image.Pt(DisplayWidth, DisplayHeight), 0, 0, gocv.InterpolationNearestNeighbor)

	tempDisplay := displayTemps(temps, rot, cfg.Rotation)
	defer tempDisplay.Close()

	if cfg.Rotation != 0 {
		m := rot.mat()
		gocv.WarpAffine(scaledMask, &scaledMask, m, image.Pt(DisplayWidth, DisplayHeight))
		m.Close()
	}

	contours := gocv.FindContours(scaledMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []Region
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < MinRegionArea {
			continue
		}
		rect := gocv.BoundingRect(c)
		cx := rect.Min.X + rect.Dx()/2
		cy := rect.Min.Y + rect.Dy()/2
		temp := float64(tempDisplay.GetFloatAt(clampPix(cy, DisplayHeight), clampPix(cx, DisplayWidth)))
		regions = append(regions, Region{Rect: rect, Temp: temp})
	}
	return regions
}

func clampPix(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}

// displayTemps builds the temperature field as a float Mat in rotated
// display space for center-of-region lookups.
func displayTemps(temps *TemperatureField, rot rotationMatrix, rotation int) gocv.Mat {
	// Little-endian float32 layout matches the CV_32F element format
	// on every target this runs on.
	buf := make([]byte, len(temps.Data)*4)
	for i, v := range temps.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	small, err := gocv.NewMatFromBytes(temps.H, temps.W, gocv.MatTypeCV32F, buf)
	if err != nil {
		return gocv.NewMatWithSize(DisplayHeight, DisplayWidth, gocv.MatTypeCV32F)
	}
	defer small.Close()

	out := gocv.NewMat()
	gocv.Resize(small, &out, image.Pt(DisplayWidth, DisplayHeight), 0, 0, gocv.InterpolationNearestNeighbor)
	if rotation != 0 {
		m := rot.mat()
		gocv.WarpAffine(out, &out, m, image.Pt(DisplayWidth, DisplayHeight))
		m.Close()
	}
	return out
}

func drawRegions(img *gocv.Mat, regions []Region) {
	for _, r := range regions {
		gocv.Rectangle(img, r.Rect, green, 2)
		gocv.PutText(img, fmt.Sprintf("%.1f C", r.Temp),
			image.Pt(r.Rect.Min.X, r.Rect.Min.Y-6),
			gocv.FontHersheySimplex, 0.5, green, 1)
	}
}

// drawCrosshair marks the sensor center with the temperature under it.
func drawCrosshair(img *gocv.Mat, stats Stats, rot rotationMatrix) {
	p := toDisplay(image.Pt(SensorWidth/2, SensorHeight/2), rot)
	gocv.Line(img, image.Pt(p.X-10, p.Y), image.Pt(p.X+10, p.Y), white, 1)
	gocv.Line(img, image.Pt(p.X, p.Y-10), image.Pt(p.X, p.Y+10), white, 1)
	gocv.PutText(img, fmt.Sprintf("%.1f C", stats.Center),
		image.Pt(p.X+12, p.Y-8), gocv.FontHersheySimplex, 0.5, white, 1)
}

// drawSpotLabels marks the hottest and coldest pixels when they
// deviate from the frame average by more than the label threshold.
func drawSpotLabels(img *gocv.Mat, stats Stats, cfg Snapshot, rot rotationMatrix) {
	if stats.Max-stats.Avg > cfg.LabelThresh {
		p := toDisplay(stats.MaxPos, rot)
		gocv.Circle(img, p, 5, red, 2)
		gocv.PutText(img, fmt.Sprintf("%.1f C", stats.Max),
			image.Pt(p.X+10, p.Y+5), gocv.FontHersheySimplex, 0.5, red, 1)
	}
	if stats.Avg-stats.Min > cfg.LabelThresh {
		p := toDisplay(stats.MinPos, rot)
		gocv.Circle(img, p, 5, blue, 2)
		gocv.PutText(img, fmt.Sprintf("%.1f C", stats.Min),
			image.Pt(p.X+10, p.Y+5), gocv.FontHersheySimplex, 0.5, blue, 1)
	}
}

// drawHUD renders the semi-transparent status panel in the top-left
// corner.
func drawHUD(img *gocv.Mat, stats Stats, cfg Snapshot, cmName string) {
	lines := []string{
		fmt.Sprintf("Avg: %.1f C", stats.Avg),
		fmt.Sprintf("Colormap: %s", cmName),
		fmt.Sprintf("Contrast: %.1f", cfg.Contrast),
		fmt.Sprintf("Blur: %d", cfg.Blur),
		fmt.Sprintf("Rotation: %d", cfg.Rotation),
		fmt.Sprintf("Threshold: %.1f C (%s)", cfg.ThresholdTemp, cfg.DetectionMode),
		fmt.Sprintf("Detection: %s", onOff(cfg.DetectRegions)),
	}

	const lineH = 18
	panel := image.Rect(0, 0, 190, lineH*len(lines)+12)

	overlay := img.Clone()
	defer overlay.Close()
	gocv.Rectangle(&overlay, panel, color.RGBA{}, -1)
	gocv.AddWeighted(overlay, 0.5, *img, 0.5, 0, img)

	for i, line := range lines {
		gocv.PutText(img, line, image.Pt(8, 20+i*lineH),
			gocv.FontHersheySimplex, 0.45, white, 1)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// placeholderFrame builds a black frame carrying a status message, for
// when no sensor data is available.
func placeholderFrame(msg string) *Frame {
	img := gocv.NewMatWithSize(DisplayHeight, DisplayWidth, gocv.MatTypeCV8UC3)
	gocv.PutText(&img, msg, image.Pt(DisplayWidth/2-140, DisplayHeight/2),
		gocv.FontHersheySimplex, 0.7, white, 2)
	return &Frame{Image: img, Timestamp: time.Now(), Err: msg}
}
