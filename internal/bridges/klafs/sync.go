package klafs

import (
	"context"
	"time"
)

// PollOutcome is the result of one status poll.
type PollOutcome int

const (
	// PollUnchanged: the cloud answered and no configured value changed.
	PollUnchanged PollOutcome = iota

	// PollChanged: at least one configured value changed or was seen for
	// the first time.
	PollChanged

	// PollFailed: the cloud could not be reached or the answer was unusable.
	PollFailed
)

// String returns the outcome name.
func (o PollOutcome) String() string {
	switch o {
	case PollUnchanged:
		return "unchanged"
	case PollChanged:
		return "changed"
	case PollFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Poll fetches the appliance status once and folds it into the store.
//
// The cloud call runs without the shared lock; the lock is held only while
// the response is applied. Concurrent callers are serialised. A changed
// poll arms the lifecycle push, records history and writes telemetry. A
// failed poll sends a pong for the device so the vDC host keeps it alive.
func (b *Bridge) Poll(ctx context.Context) PollOutcome {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	status, err := b.cloud.GetStatus(ctx)
	if err != nil {
		b.mu.Lock()
		b.lastPoll = b.now()
		b.lastOutcome = PollFailed
		b.pollFailures++
		failures := b.pollFailures
		dsuid := b.identity.DeviceDSUID
		b.mu.Unlock()

		b.logWarn("status poll failed", "error", err, "consecutive_failures", failures)
		if perr := b.bus.SendPong(dsuid); perr != nil {
			b.logDebug("pong after failed poll not sent", "error", perr)
		}
		return PollFailed
	}

	var unknown []string

	b.mu.Lock()
	now := b.now()
	changed := b.store.ApplyStatus(status, now, func(name string) {
		unknown = append(unknown, name)
	})
	outcome := PollUnchanged
	if changed {
		outcome = PollChanged
		b.pendingPush = true
	}
	b.lastPoll = now
	b.lastOutcome = outcome
	b.pollFailures = 0

	var snapshot Status
	if changed {
		snapshot = b.statusLocked()
	}
	b.mu.Unlock()

	for _, name := range unknown {
		b.logWarn("status value not configured, ignoring", "name", name)
	}

	if changed {
		b.logDebug("changed values detected")
		b.recordChange(ctx, snapshot)
	}
	return outcome
}

// recordChange writes telemetry and history for a changed poll.
func (b *Bridge) recordChange(ctx context.Context, st Status) {
	if b.telemetry != nil {
		for _, s := range st.Sensors {
			b.telemetry.RecordReading(st.SaunaID, s.Name, s.Value)
		}
		for _, bi := range st.Binaries {
			v := 0.0
			if bi.Value {
				v = 1
			}
			b.telemetry.RecordReading(st.SaunaID, bi.Name, v)
		}
	}

	if b.repo != nil {
		if err := b.repo.RecordState(ctx, st.Device); err != nil {
			b.logError("failed to record state history", err)
		}
	}

	if b.onChange != nil {
		b.onChange(st)
	}
}

// RequestPoll asks the poll loop for an out-of-band poll. It never blocks;
// a request already pending absorbs this one.
func (b *Bridge) RequestPoll() {
	select {
	case b.pollRequests <- struct{}{}:
	default:
	}
}

// nextDue computes the next scheduled poll after an outcome.
func (b *Bridge) nextDue(outcome PollOutcome, now time.Time) time.Time {
	if outcome == PollFailed {
		return now.Add(b.retryInterval)
	}
	return now.Add(b.pollInterval)
}

// RunPoller runs the poll loop until ctx is cancelled. The first poll
// happens immediately.
func (b *Bridge) RunPoller(ctx context.Context) error {
	b.logInfo("poll loop started",
		"interval", b.pollInterval,
		"retry_interval", b.retryInterval)

	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	var due time.Time
	forced := false

	for {
		if forced || !b.now().Before(due) {
			forced = false
			outcome := b.Poll(ctx)
			if ctx.Err() != nil {
				b.logInfo("poll loop stopped")
				return nil
			}
			due = b.nextDue(outcome, b.now())

			b.mu.Lock()
			b.nextPoll = due
			b.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			b.logInfo("poll loop stopped")
			return nil
		case <-ticker.C:
		case <-b.pollRequests:
			forced = true
		}
	}
}
