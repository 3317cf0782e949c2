package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() SurveyParams {
	return SurveyParams{
		Points: []LatLon{
			{Lat: 45.5000, Lon: -73.6000},
			{Lat: 45.5010, Lon: -73.6000},
			{Lat: 45.5010, Lon: -73.5990},
		},
		Speed:   5,
		Alt:     50,
		Style:   StyleLongest,
		Spacing: 20,
		Buffer:  5,
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SurveyParams)
		want   string
	}{
		{"slow", func(p *SurveyParams) { p.Speed = 0.5 }, "Invalid speed"},
		{"fast", func(p *SurveyParams) { p.Speed = 20 }, "Invalid speed"},
		{"low", func(p *SurveyParams) { p.Alt = 5 }, "Invalid altitude"},
		{"high", func(p *SurveyParams) { p.Alt = 200 }, "Invalid altitude"},
		{"tight", func(p *SurveyParams) { p.Spacing = 1 }, "Invalid spacing"},
		{"buffer", func(p *SurveyParams) { p.Buffer = 50 }, "Invalid buffer"},
		{"style", func(p *SurveyParams) { p.Style = "spiral" }, "Invalid style"},
		{"points", func(p *SurveyParams) { p.Points = p.Points[:2] }, "Invalid polygon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPlanSurveyTriangle(t *testing.T) {
	p := validParams()
	wps, err := PlanSurvey(p, Position{})
	require.NoError(t, err)
	require.NotEmpty(t, wps)
	assert.Zero(t, len(wps)%2, "lawnmower lines have two ends each")

	for _, wp := range wps {
		assert.Equal(t, p.Alt, wp.Alt)
		// Inside the buffered bounding box.
		assert.GreaterOrEqual(t, wp.Lat, 45.4999)
		assert.LessOrEqual(t, wp.Lat, 45.5011)
		assert.GreaterOrEqual(t, wp.Lon, -73.6001)
		assert.LessOrEqual(t, wp.Lon, -73.5988)
	}
}

func TestPlanSurveyStylesDiffer(t *testing.T) {
	p := validParams()
	// Stretch the box north-south so the axes clearly differ.
	p.Points = []LatLon{
		{Lat: 45.5000, Lon: -73.6000},
		{Lat: 45.5030, Lon: -73.6000},
		{Lat: 45.5030, Lon: -73.5995},
	}

	long, err := PlanSurvey(p, Position{})
	require.NoError(t, err)

	p.Style = StyleShortest
	short, err := PlanSurvey(p, Position{})
	require.NoError(t, err)

	// Sweeping across the long axis needs more lines than along it.
	assert.Greater(t, len(short), len(long))
}

func TestPlanSurveyStartsNearVehicle(t *testing.T) {
	p := validParams()
	unrotated, err := PlanSurvey(p, Position{})
	require.NoError(t, err)
	require.Greater(t, len(unrotated), 2)

	last := unrotated[len(unrotated)-1]
	rotated, err := PlanSurvey(p, Position{Lat: last.Lat, Lon: last.Lon})
	require.NoError(t, err)

	assert.Equal(t, last, rotated[0])
	// Rotation, not sorting: the successor relationships survive.
	assert.Equal(t, unrotated[0], rotated[1])
}

func TestRotateToNearestNoPosition(t *testing.T) {
	wps := []Waypoint{{Lat: 1}, {Lat: 2}}
	assert.Equal(t, wps, rotateToNearest(wps, Position{}))
}
