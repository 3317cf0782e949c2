package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposesRegisteredSources(t *testing.T) {
	m := New(Sources{
		FramesRead:      func() uint64 { return 42 },
		RecordingActive: func() bool { return true },
		ActiveClients:   func() int { return 3 },
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, "groundstation_thermal_frames_read_total 42")
	assert.Contains(t, out, "groundstation_recording_active 1")
	assert.Contains(t, out, "groundstation_rtc_active_clients 3")
	// Unregistered sources stay absent.
	assert.NotContains(t, out, "groundstation_mission_active")
}
