package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSauna  = "sauna"
	MeasurementBridge = "klafs_bridge"
)

// BridgeStats is one sample of the bridge's own counters.
type BridgeStats struct {
	DroppedRequests uint64
	SessionActive   bool
	Health          string
}

// RecordReading queues one sauna value. Binary inputs arrive as 0 or 1.
// It satisfies the bridge's telemetry hook.
//
// Example:
//
//	client.RecordReading("364cc9db", "currentTemperature", 78)
func (c *Client) RecordReading(saunaID, name string, value float64) {
	c.write(readingPoint(saunaID, name, value, time.Now()))
}

// RecordBridgeStats queues a sample of the bridge counters, tagged with
// the bridge's MQTT client id.
func (c *Client) RecordBridgeStats(bridgeID string, stats BridgeStats) {
	c.write(bridgePoint(bridgeID, stats, time.Now()))
}

func readingPoint(saunaID, name string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementSauna,
		map[string]string{"sauna_id": saunaID, "value": name},
		map[string]interface{}{"reading": value},
		ts,
	)
}

func bridgePoint(bridgeID string, stats BridgeStats, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementBridge,
		map[string]string{"bridge": bridgeID},
		map[string]interface{}{
			"dropped_requests": int64(stats.DroppedRequests), //nolint:gosec // counter fits
			"session_active":   stats.SessionActive,
			"status":           stats.Health,
		},
		ts,
	)
}
