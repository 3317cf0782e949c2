package flight

import (
	"fmt"
	"math"

	"github.com/citydrone/ground-station/internal/geo"
)

// Survey parameter bounds. Regulatory ceiling of 120 m AGL included.
const (
	MinSpeed   = 1.0
	MaxSpeed   = 15.0
	MinAlt     = 10.0
	MaxAlt     = 120.0
	MinSpacing = 5.0
	MaxSpacing = 50.0
	MinBuffer  = 0.0
	MaxBuffer  = 20.0
)

// Sweep styles: lines parallel to the longer box axis (fewer turns) or
// the shorter one.
const (
	StyleLongest  = "longest"
	StyleShortest = "shortest"
)

// LatLon is a polygon vertex.
type LatLon struct {
	Lat, Lon float64
}

// Waypoint is one mission target.
type Waypoint struct {
	Lat, Lon, Alt float64
}

// SurveyParams describes a lawnmower survey over a polygon.
type SurveyParams struct {
	Points  []LatLon
	Speed   float64 // m/s
	Alt     float64 // m relative
	Style   string
	Spacing float64 // m between sweep lines
	Buffer  float64 // m of margin around the polygon
}

// Validate checks all parameters and returns the first violation.
func (p SurveyParams) Validate() error {
	if len(p.Points) < 3 {
		return fmt.Errorf("Invalid polygon: need at least 3 points")
	}
	if p.Speed < MinSpeed || p.Speed > MaxSpeed {
		return fmt.Errorf("Invalid speed: must be between %v and %v m/s", MinSpeed, MaxSpeed)
	}
	if p.Alt < MinAlt || p.Alt > MaxAlt {
		return fmt.Errorf("Invalid altitude: must be between %v and %v meters", MinAlt, MaxAlt)
	}
	if p.Spacing < MinSpacing || p.Spacing > MaxSpacing {
		return fmt.Errorf("Invalid spacing: must be between %v and %v meters", MinSpacing, MaxSpacing)
	}
	if p.Buffer < MinBuffer || p.Buffer > MaxBuffer {
		return fmt.Errorf("Invalid buffer: must be between %v and %v meters", MinBuffer, MaxBuffer)
	}
	if p.Style != StyleLongest && p.Style != StyleShortest {
		return fmt.Errorf("Invalid style: must be %q or %q", StyleLongest, StyleShortest)
	}
	return nil
}

// PlanSurvey builds the lawnmower waypoint list. The survey area is
// the axis-aligned bounding box of the polygon grown by the buffer.
// The waypoint order is rotated (not re-sorted) so the pattern starts
// at the line end nearest the vehicle.
func PlanSurvey(p SurveyParams, start Position) ([]Waypoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	minLat, maxLat := p.Points[0].Lat, p.Points[0].Lat
	minLon, maxLon := p.Points[0].Lon, p.Points[0].Lon
	for _, pt := range p.Points[1:] {
		minLat = math.Min(minLat, pt.Lat)
		maxLat = math.Max(maxLat, pt.Lat)
		minLon = math.Min(minLon, pt.Lon)
		maxLon = math.Max(maxLon, pt.Lon)
	}

	centerLat := (minLat + maxLat) / 2
	bLat, bLon := geo.MetersToDegrees(p.Buffer, centerLat)
	minLat -= bLat
	maxLat += bLat
	minLon -= bLon
	maxLon += bLon

	heightM := (maxLat - minLat) * geo.MetersPerDegreeLat
	widthM := (maxLon - minLon) * geo.MetersPerDegreeLat * math.Cos(centerLat*math.Pi/180)
	sLat, sLon := geo.MetersToDegrees(p.Spacing, centerLat)

	// Lines run along the longer box axis unless the shortest style
	// flips them.
	linesNorthSouth := heightM >= widthM
	if p.Style == StyleShortest {
		linesNorthSouth = !linesNorthSouth
	}

	var wps []Waypoint
	if linesNorthSouth {
		forward := true
		for lon := minLon; lon <= maxLon+sLon/2; lon += sLon {
			a := Waypoint{Lat: minLat, Lon: lon, Alt: p.Alt}
			b := Waypoint{Lat: maxLat, Lon: lon, Alt: p.Alt}
			if forward {
				wps = append(wps, a, b)
			} else {
				wps = append(wps, b, a)
			}
			forward = !forward
		}
	} else {
		forward := true
		for lat := minLat; lat <= maxLat+sLat/2; lat += sLat {
			a := Waypoint{Lat: lat, Lon: minLon, Alt: p.Alt}
			b := Waypoint{Lat: lat, Lon: maxLon, Alt: p.Alt}
			if forward {
				wps = append(wps, a, b)
			} else {
				wps = append(wps, b, a)
			}
			forward = !forward
		}
	}

	return rotateToNearest(wps, start), nil
}

// rotateToNearest shifts the waypoint ring so the one closest to the
// vehicle comes first. The relative sweep order is preserved.
func rotateToNearest(wps []Waypoint, start Position) []Waypoint {
	if len(wps) == 0 || (start.Lat == 0 && start.Lon == 0) {
		return wps
	}
	best := 0
	bestDist := math.Inf(1)
	for i, wp := range wps {
		d := geo.Haversine(start.Lat, start.Lon, wp.Lat, wp.Lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == 0 {
		return wps
	}
	out := make([]Waypoint, 0, len(wps))
	out = append(out, wps[best:]...)
	out = append(out, wps[:best]...)
	return out
}
