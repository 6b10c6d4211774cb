package klafs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bridge timing defaults.
const (
	// DefaultPollInterval is the normal delay between status polls.
	DefaultPollInterval = 60 * time.Second

	// DefaultRetryInterval is the delay after a failed poll.
	DefaultRetryInterval = 60 * time.Second

	// DefaultWorkTimeout bounds the wait for a bus request per loop iteration.
	DefaultWorkTimeout = 2 * time.Second

	// pollTick is the coarse wake-up of the poll loop.
	pollTick = 5 * time.Second

	// requestQueueSize is the depth of the inbound request channel.
	requestQueueSize = 64

	// DefaultZoneID is the bus zone of an unassigned device.
	DefaultZoneID = 65534
)

// Bridge ties the Klafs cloud to the vDC bus. It owns the value store,
// the scene table, the device lifecycle flags and the two service loops.
//
// Thread Safety: mu guards the store, the identity and the lifecycle
// flags. pollMu serialises cloud polls. Code holding mu never calls back
// into a path that acquires it again.
type Bridge struct {
	cloud     CloudClient
	bus       Bus
	repo      StateRepository
	telemetry Telemetry
	logger    Logger
	onChange  func(Status)
	now       func() time.Time

	pollInterval  time.Duration
	retryInterval time.Duration
	workTimeout   time.Duration

	mu       sync.Mutex
	store    *Store
	identity Identity

	// lifecycle
	present          bool
	presentSignaled  bool
	announcedSession uint64
	pendingPush      bool

	// poll bookkeeping, guarded by mu
	lastPoll     time.Time
	lastOutcome  PollOutcome
	nextPoll     time.Time
	pollFailures int

	pollMu       sync.Mutex
	pollRequests chan struct{}
	requests     chan Request

	dropped atomic.Uint64
}

// CloudClient is the subset of the Klafs cloud API the bridge drives.
// This interface is satisfied by *cloud.Client.
type CloudClient interface {
	GetStatus(ctx context.Context) (map[string]any, error)
	StartCabin(ctx context.Context) error
	StopCabin(ctx context.Context) error
	ChangeTemperature(ctx context.Context, temperature int) error
	ChangeHumidity(ctx context.Context, level int) error
	SetMode(ctx context.Context, mode int) error
	FavoriteSelected(ctx context.Context, temperature, humLevel, irLevel int) error
}

// Bus is the outbound side of the vDC API.
// This interface is satisfied by *VDCBus.
type Bus interface {
	// Session returns the current session number, 0 when no session is open.
	Session() uint64

	AnnounceDevice(dsuid string) error
	VanishDevice(dsuid string) error
	IdentifyDevice(dsuid string) error
	PushProperty(dsuid string, props []Property) error
	SendPong(dsuid string) error

	// Respond answers a request that carries a request id.
	Respond(requestID string, data any, err error) error
}

// StateRepository persists mutable bridge state.
// This interface is satisfied by *statedb.Repository.
type StateRepository interface {
	SaveScene(ctx context.Context, slot int, scene Scene) error
	SaveSetting(ctx context.Context, key, value string) error
	RecordState(ctx context.Context, state DeviceState) error
}

// Telemetry receives every configured value after a changed poll, binary
// inputs as 0 or 1. It is optional - if nil, no time-series data is written.
type Telemetry interface {
	RecordReading(saunaID, name string, value float64)
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Setting keys written by the bridge.
const (
	SettingZoneID        = "zone_id"
	SettingDefaultZoneID = "default_zone_id"
)

// Identity names the container and the device on the bus.
type Identity struct {
	DeviceDSUID string
	VDCDSUID    string
	LibDSUID    string

	SaunaID string
	Name    string

	// ZoneID is the device zone; DefaultZoneID the container zone.
	ZoneID        int
	DefaultZoneID int

	ConfigURL string
	Hostname  string
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Identity Identity
	Sensors  []SensorDef
	Binaries []BinaryDef

	// Scenes seeds the scene table.
	Scenes []Scene

	PollInterval  time.Duration
	RetryInterval time.Duration
	WorkTimeout   time.Duration

	Cloud CloudClient
	Bus   Bus

	// Repository is optional; without it zone and scene changes are not persisted.
	Repository StateRepository

	// Telemetry is optional.
	Telemetry Telemetry

	// Logger is optional structured logger.
	Logger Logger

	// OnChange is called with a fresh status after every changed poll.
	OnChange func(Status)

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// NewBridge creates a new bridge instance. The device starts present.
// Call RunPoller and RunBus to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Cloud == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if opts.Identity.DeviceDSUID == "" || opts.Identity.VDCDSUID == "" {
		return nil, fmt.Errorf("device and container dsUID are required")
	}

	store, err := NewStore(opts.Sensors, opts.Binaries)
	if err != nil {
		return nil, fmt.Errorf("building value store: %w", err)
	}
	for _, sc := range opts.Scenes {
		if _, err := store.PutScene(sc); err != nil {
			return nil, fmt.Errorf("seeding scene %d: %w", sc.ID, err)
		}
	}

	id := opts.Identity
	if id.ZoneID == 0 {
		id.ZoneID = DefaultZoneID
	}
	if id.DefaultZoneID == 0 {
		id.DefaultZoneID = DefaultZoneID
	}

	b := &Bridge{
		cloud:         opts.Cloud,
		bus:           opts.Bus,
		repo:          opts.Repository,
		telemetry:     opts.Telemetry,
		logger:        opts.Logger,
		onChange:      opts.OnChange,
		now:           opts.Clock,
		pollInterval:  orDefault(opts.PollInterval, DefaultPollInterval),
		retryInterval: orDefault(opts.RetryInterval, DefaultRetryInterval),
		workTimeout:   orDefault(opts.WorkTimeout, DefaultWorkTimeout),
		store:         store,
		identity:      id,
		present:       true,
		pollRequests:  make(chan struct{}, 1),
		requests:      make(chan Request, requestQueueSize),
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Identity returns a copy of the bus identity.
func (b *Bridge) Identity() Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

// SetPresent marks the local device as existing or gone. The lifecycle
// ladder signals the change to the bus.
func (b *Bridge) SetPresent(present bool) {
	b.mu.Lock()
	b.present = present
	b.mu.Unlock()
}

// Submit queues an inbound bus request for the bus loop. A full queue
// drops the request.
//
// Returns:
//   - bool: false if the request was dropped
func (b *Bridge) Submit(req Request) bool {
	select {
	case b.requests <- req:
		return true
	default:
		b.dropped.Add(1)
		b.logWarn("request queue full, dropping request",
			"kind", req.Kind,
			"request_id", req.RequestID)
		return false
	}
}

// RunBus runs the bus-event loop until ctx is cancelled. Each iteration
// waits up to the work timeout for one request, handles it, then runs one
// lifecycle tick.
func (b *Bridge) RunBus(ctx context.Context) error {
	b.logInfo("bus loop started", "work_timeout", b.workTimeout)
	timer := time.NewTimer(b.workTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logInfo("bus loop stopped")
			return nil
		case req := <-b.requests:
			b.handleRequest(ctx, req)
		case <-timer.C:
		}

		b.Tick()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.workTimeout)
	}
}

// Status is a point-in-time copy of the bridge state for local consumers.
type Status struct {
	Identity    Identity        `json:"-"`
	SaunaID     string          `json:"sauna_id"`
	Name        string          `json:"name"`
	ZoneID      int             `json:"zone_id"`
	Device      DeviceState     `json:"device"`
	Sensors     []SensorReading `json:"sensors"`
	Binaries    []BinaryReading `json:"binary_inputs"`
	LastPoll    time.Time       `json:"last_poll"`
	LastOutcome string          `json:"last_outcome"`
	NextPoll    time.Time       `json:"next_poll"`
	Announced   bool            `json:"announced"`
	Present     bool            `json:"present"`
}

// SensorReading is one sensor slot in a Status.
type SensorReading struct {
	Index         int       `json:"index"`
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	QueriedAt     time.Time `json:"queried_at"`
	ReportedAt    time.Time `json:"reported_at"`
}

// BinaryReading is one binary input slot in a Status.
type BinaryReading struct {
	Index         int       `json:"index"`
	Name          string    `json:"name"`
	Value         bool      `json:"value"`
	PreviousValue bool      `json:"previous_value"`
	QueriedAt     time.Time `json:"queried_at"`
	ReportedAt    time.Time `json:"reported_at"`
}

// Status returns a snapshot of the bridge state.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked()
}

func (b *Bridge) statusLocked() Status {
	st := Status{
		Identity:    b.identity,
		SaunaID:     b.identity.SaunaID,
		Name:        b.identity.Name,
		ZoneID:      b.identity.ZoneID,
		Device:      b.store.State,
		LastPoll:    b.lastPoll,
		LastOutcome: b.lastOutcome.String(),
		NextPoll:    b.nextPoll,
		Announced:   b.announcedSession != 0,
		Present:     b.present,
	}
	for i, sv := range b.store.Sensors() {
		st.Sensors = append(st.Sensors, SensorReading{
			Index: i, Name: sv.Name, Value: sv.Value, PreviousValue: sv.PreviousValue,
			QueriedAt: sv.LastQueriedAt, ReportedAt: sv.LastReportedAt,
		})
	}
	for i, bv := range b.store.Binaries() {
		st.Binaries = append(st.Binaries, BinaryReading{
			Index: i, Name: bv.Name, Value: bv.Value, PreviousValue: bv.PreviousValue,
			QueriedAt: bv.LastQueriedAt, ReportedAt: bv.LastReportedAt,
		})
	}
	return st
}

// Scenes returns the saved scenes in insertion order.
func (b *Bridge) Scenes() []Scene {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Scenes()
}

// DroppedRequests returns how many inbound requests were dropped.
func (b *Bridge) DroppedRequests() uint64 {
	return b.dropped.Load()
}

// Logging helpers

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}
