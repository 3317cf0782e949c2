package flight

import (
	"context"
	"fmt"
	"time"

	"github.com/citydrone/ground-station/internal/logger"
)

const (
	telemetryInterval = 3 * time.Second
	heartbeatGrace    = 7 * time.Second
)

// RunTelemetry periodically pushes LOCATION lines to the operator and
// watches the autopilot heartbeat. A stale heartbeat is logged but
// does not interrupt anything; the RC failsafe owns that decision.
func RunTelemetry(ctx context.Context, v Vehicle, send func(string)) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	stale := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pos := v.Position()
		send(fmt.Sprintf("LOCATION:%.7f:%.7f:%.1f:%.1f", pos.Lat, pos.Lon, pos.RelAlt, pos.Alt))

		hb := v.LastHeartbeat()
		if hb.IsZero() {
			continue
		}
		if age := time.Since(hb); age > heartbeatGrace {
			if !stale {
				logger.Warn("Flight", "no autopilot heartbeat for %.1fs", age.Seconds())
				stale = true
			}
		} else if stale {
			logger.Info("Flight", "autopilot heartbeat recovered")
			stale = false
		}
	}
}
