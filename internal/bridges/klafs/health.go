package klafs

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// degradedAfterFailures is the number of consecutive failed polls after
// which the bridge reports itself degraded.
const degradedAfterFailures = 3

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	topic     string
	publisher HealthPublisher
	source    HealthSource
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthSource reports the bridge's own view of its health.
// This interface is satisfied by *Bridge.
type HealthSource interface {
	HealthSnapshot() HealthSnapshot
}

// HealthSnapshot is the bridge-side part of a health message.
type HealthSnapshot struct {
	Status        HealthStatus
	Reason        string
	LastPoll      string
	SessionActive bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Topic     string
	Publisher HealthPublisher
	Source    HealthSource
	Logger    Logger
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		topic:     cfg.Topic,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting and publishes a final
// "stopping" status. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthSnapshot{Status: HealthStopping})
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthSnapshot{Status: HealthStarting, Reason: "bridge starting"})
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.determineStatus())
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() HealthSnapshot {
	var snap HealthSnapshot
	if h.source != nil {
		snap = h.source.HealthSnapshot()
	} else {
		snap.Status = HealthHealthy
	}
	if h.publisher == nil || !h.publisher.IsConnected() {
		snap.Status = HealthDegraded
		snap.Reason = "MQTT disconnected"
	}
	return snap
}

func (h *HealthReporter) publish(snap HealthSnapshot) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        snap.Status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		LastPoll:      snap.LastPoll,
		SessionActive: snap.SessionActive,
		Reason:        snap.Reason,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
}

// HealthSnapshot reports the bridge's health from the poll history.
func (b *Bridge) HealthSnapshot() HealthSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := HealthSnapshot{
		Status:        HealthHealthy,
		SessionActive: b.bus.Session() != 0,
	}
	if !b.lastPoll.IsZero() {
		snap.LastPoll = b.lastOutcome.String()
	}

	switch {
	case b.lastPoll.IsZero():
		snap.Status = HealthStarting
		snap.Reason = "waiting for first poll"
	case b.pollFailures >= degradedAfterFailures:
		snap.Status = HealthDegraded
		snap.Reason = "cloud unreachable"
	}
	return snap
}
