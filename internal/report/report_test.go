package report

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydrone/ground-station/internal/flight"
	"github.com/citydrone/ground-station/internal/thermal"
)

func TestEncodeThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 768, 576))
	b64, err := encodeThumbnail(src)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	// JPEG SOI marker.
	require.GreaterOrEqual(t, len(raw), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, raw[:2])
}

func TestPushPostsJSON(t *testing.T) {
	var got Report
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received <- struct{}{}
	}))
	defer srv.Close()

	pipeline := thermal.NewPipeline(thermal.DefaultSettings(), nil)
	sim := flight.NewSimVehicle(45.5, -73.6)
	sim.SetPosition(flight.Position{Lat: 45.5, Lon: -73.6, RelAlt: 42})
	sim.SetHeading(135)
	require.NoError(t, sim.SetGroundspeed(5))

	rep := NewReporter("unit-07", srv.URL, time.Hour, pipeline, sim, func() bool { return true })
	require.NoError(t, rep.push(context.Background()))

	<-received
	assert.Equal(t, "unit-07", got.DroneID)
	assert.Equal(t, 45.5, got.Lat)
	assert.Equal(t, 42.0, got.RelAlt)
	assert.Equal(t, 135.0, got.Heading)
	assert.Equal(t, 5.0, got.Speed)
	assert.True(t, got.Recording)
	// Placeholder frame carries no temperature payload.
	assert.Zero(t, got.TempMax)
}

func TestPushReportsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	pipeline := thermal.NewPipeline(thermal.DefaultSettings(), nil)
	rep := NewReporter("unit-07", srv.URL, time.Hour, pipeline, nil, nil)
	err := rep.push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
