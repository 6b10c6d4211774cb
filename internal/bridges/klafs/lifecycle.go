package klafs

// LifecycleAction is what one lifecycle tick did.
type LifecycleAction int

const (
	// LifecycleSkipped: the shared lock was busy; no bus work was done.
	LifecycleSkipped LifecycleAction = iota
	LifecycleIdle
	LifecycleNoSession
	LifecycleAnnounce
	LifecycleVanish
	LifecycleIdentify
	LifecyclePush
)

// String returns the action name.
func (a LifecycleAction) String() string {
	switch a {
	case LifecycleSkipped:
		return "skipped"
	case LifecycleIdle:
		return "idle"
	case LifecycleNoSession:
		return "no_session"
	case LifecycleAnnounce:
		return "announce"
	case LifecycleVanish:
		return "vanish"
	case LifecycleIdentify:
		return "identify"
	case LifecyclePush:
		return "push"
	default:
		return "unknown"
	}
}

// Tick evaluates the device lifecycle ladder once and performs at most one
// bus-side action. If a poll currently holds the lock the whole tick is
// skipped; the work happens on a later tick.
//
// Ladder, first match wins:
//  1. no session: forget the announcement
//  2. not announced in this session: announce
//  3. gone but presence signalled: vanish
//  4. present but presence not signalled: identify
//  5. changed values pending: push sensors, then binary inputs
func (b *Bridge) Tick() LifecycleAction {
	if !b.mu.TryLock() {
		return LifecycleSkipped
	}
	defer b.mu.Unlock()

	session := b.bus.Session()
	if session == 0 {
		b.announcedSession = 0
		return LifecycleNoSession
	}

	dsuid := b.identity.DeviceDSUID

	if b.announcedSession != session {
		b.logInfo("announcing device", "dsuid", dsuid)
		if err := b.bus.AnnounceDevice(dsuid); err != nil {
			b.logError("device announce failed", err, "dsuid", dsuid)
			return LifecycleAnnounce
		}
		b.announcedSession = session
		return LifecycleAnnounce
	}

	if !b.present && b.presentSignaled {
		if err := b.bus.VanishDevice(dsuid); err != nil {
			b.logError("device vanish failed", err, "dsuid", dsuid)
		}
		b.presentSignaled = false
		return LifecycleVanish
	}

	if b.present && !b.presentSignaled {
		if err := b.bus.IdentifyDevice(dsuid); err != nil {
			b.logError("device identify failed", err, "dsuid", dsuid)
		}
		b.presentSignaled = true
		return LifecycleIdentify
	}

	if b.pendingPush {
		b.pendingPush = false
		b.logInfo("reporting new values", "dsuid", dsuid)
		b.pushSensorsLocked()
		b.pushBinaryInputsLocked()
		return LifecyclePush
	}

	return LifecycleIdle
}
