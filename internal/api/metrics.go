package api

import (
	"net/http"
	"runtime"
	"time"
)

const bytesPerMB = 1 << 20

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Bridge        BridgeMetrics   `json:"bridge"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	WebSocket     WSMetrics       `json:"websocket"`
	Database      DatabaseMetrics `json:"database"`
	Runtime       RuntimeMetrics  `json:"runtime"`
}

// BridgeMetrics summarises the sauna bridge.
type BridgeMetrics struct {
	Health          string `json:"health"`
	LastOutcome     string `json:"last_outcome"`
	LastPoll        string `json:"last_poll,omitempty"`
	SessionActive   bool   `json:"session_active"`
	Announced       bool   `json:"announced"`
	DroppedRequests uint64 `json:"dropped_requests"`
	Scenes          int    `json:"scenes"`
}

// MQTTMetrics reports the broker link.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// WSMetrics reports WebSocket subscribers.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics is the sql.DB pool state.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// RuntimeMetrics is a small slice of runtime.MemStats.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Bridge:        s.bridgeMetrics(),
		Runtime:       runtimeMetrics(),
	}
	if s.mqtt != nil {
		m.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.hub != nil {
		m.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.db != nil {
		st := s.db.Stats()
		m.Database = DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) bridgeMetrics() BridgeMetrics {
	health := s.sauna.HealthSnapshot()
	st := s.sauna.Status()

	bm := BridgeMetrics{
		Health:          string(health.Status),
		LastOutcome:     st.LastOutcome,
		SessionActive:   health.SessionActive,
		Announced:       st.Announced,
		DroppedRequests: s.sauna.DroppedRequests(),
		Scenes:          len(s.sauna.Scenes()),
	}
	if !st.LastPoll.IsZero() {
		bm.LastPoll = st.LastPoll.UTC().Format(time.RFC3339)
	}
	return bm
}

func runtimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(ms.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(ms.TotalAlloc) / bytesPerMB,
		NumGC:         ms.NumGC,
	}
}
