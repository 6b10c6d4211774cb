package klafs

import "testing"

func TestTick_Ladder(t *testing.T) {
	h := newTestHarness(t)

	if got := h.bridge.Tick(); got != LifecycleNoSession {
		t.Fatalf("Tick() without session = %v, want no_session", got)
	}

	h.bus.setSession(1)
	steps := []LifecycleAction{LifecycleAnnounce, LifecycleIdentify, LifecycleIdle, LifecycleIdle}
	for i, want := range steps {
		if got := h.bridge.Tick(); got != want {
			t.Fatalf("tick %d = %v, want %v", i, got, want)
		}
	}
	want := []string{"announce", "identify"}
	if got := h.bus.kinds(); !equalStrings(got, want) {
		t.Errorf("bus events = %v, want %v", got, want)
	}
	if !h.bridge.Status().Announced {
		t.Error("Status().Announced = false after announce")
	}
}

func TestTick_VanishAndReidentify(t *testing.T) {
	h := newTestHarness(t)
	h.settle(t)

	h.bridge.SetPresent(false)
	if got := h.bridge.Tick(); got != LifecycleVanish {
		t.Fatalf("Tick() = %v, want vanish", got)
	}
	if got := h.bridge.Tick(); got != LifecycleIdle {
		t.Errorf("Tick() after vanish = %v, want idle", got)
	}

	h.bridge.SetPresent(true)
	if got := h.bridge.Tick(); got != LifecycleIdentify {
		t.Errorf("Tick() = %v, want identify", got)
	}
	want := []string{"vanish", "identify"}
	if got := h.bus.kinds(); !equalStrings(got, want) {
		t.Errorf("bus events = %v, want %v", got, want)
	}
}

func TestTick_NewSessionReannounces(t *testing.T) {
	h := newTestHarness(t)
	h.settle(t)

	h.bus.setSession(0)
	if got := h.bridge.Tick(); got != LifecycleNoSession {
		t.Fatalf("Tick() = %v, want no_session", got)
	}
	if h.bridge.Status().Announced {
		t.Error("announcement should be forgotten without a session")
	}

	h.bus.setSession(2)
	if got := h.bridge.Tick(); got != LifecycleAnnounce {
		t.Fatalf("Tick() = %v, want announce", got)
	}
	// Presence was already signalled and is not repeated.
	if got := h.bridge.Tick(); got != LifecycleIdle {
		t.Errorf("Tick() = %v, want idle", got)
	}
}

func TestTick_SessionChangeWithoutGap(t *testing.T) {
	h := newTestHarness(t)
	h.settle(t)

	h.bus.setSession(7)
	if got := h.bridge.Tick(); got != LifecycleAnnounce {
		t.Errorf("Tick() = %v, want announce on a new session number", got)
	}
}

func TestTick_FailedAnnounceRetries(t *testing.T) {
	h := newTestHarness(t)
	h.bus.setSession(1)
	h.bus.failOn["announce"] = errTest

	h.bridge.Tick()
	delete(h.bus.failOn, "announce")

	if got := h.bridge.Tick(); got != LifecycleAnnounce {
		t.Errorf("Tick() = %v, want announce retried", got)
	}
}

func TestTick_PushPendingAfterChange(t *testing.T) {
	h := newTestHarness(t)
	h.settle(t)

	h.bridge.mu.Lock()
	h.bridge.pendingPush = true
	h.bridge.mu.Unlock()

	if got := h.bridge.Tick(); got != LifecyclePush {
		t.Fatalf("Tick() = %v, want push", got)
	}
	if got := h.bridge.Tick(); got != LifecycleIdle {
		t.Errorf("second Tick() = %v, want idle", got)
	}

	st := h.bridge.Status()
	for _, s := range st.Sensors {
		if s.ReportedAt.IsZero() {
			t.Errorf("sensor %s not marked reported", s.Name)
		}
	}
	for _, b := range st.Binaries {
		if b.ReportedAt.IsZero() {
			t.Errorf("binary %s not marked reported", b.Name)
		}
	}
}
