package klafs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockCloud records every cloud call in order.
type mockCloud struct {
	mu     sync.Mutex
	calls  []string
	status map[string]any

	statusErr error

	// failOn maps a call name to the error it returns.
	failOn map[string]error

	// beforeStatus runs inside GetStatus, before it returns.
	beforeStatus func()
}

func newMockCloud(status map[string]any) *mockCloud {
	return &mockCloud{status: status, failOn: make(map[string]error)}
}

func (m *mockCloud) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	name := call
	if i := strings.Index(call, "("); i > 0 {
		name = call[:i]
	}
	return m.failOn[name]
}

func (m *mockCloud) GetStatus(_ context.Context) (map[string]any, error) {
	if err := m.record("GetStatus"); err != nil {
		return nil, err
	}
	if m.beforeStatus != nil {
		m.beforeStatus()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	out := make(map[string]any, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out, nil
}

func (m *mockCloud) setStatus(status map[string]any) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *mockCloud) StartCabin(_ context.Context) error { return m.record("StartCabin") }
func (m *mockCloud) StopCabin(_ context.Context) error  { return m.record("StopCabin") }

func (m *mockCloud) ChangeTemperature(_ context.Context, t int) error {
	return m.record(fmt.Sprintf("ChangeTemperature(%d)", t))
}

func (m *mockCloud) ChangeHumidity(_ context.Context, level int) error {
	return m.record(fmt.Sprintf("ChangeHumidity(%d)", level))
}

func (m *mockCloud) SetMode(_ context.Context, mode int) error {
	return m.record(fmt.Sprintf("SetMode(%d)", mode))
}

func (m *mockCloud) FavoriteSelected(_ context.Context, t, hum, ir int) error {
	return m.record(fmt.Sprintf("FavoriteSelected(%d,%d,%d)", t, hum, ir))
}

// commands returns the recorded calls without status polls.
func (m *mockCloud) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c != "GetStatus" {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockCloud) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockCloud) reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// busEvent is one outbound bus call.
type busEvent struct {
	kind  string
	dsuid string
	props []Property
	reqID string
	data  any
	err   error
}

// mockBus records outbound bus traffic.
type mockBus struct {
	mu      sync.Mutex
	session uint64
	events  []busEvent
	failOn  map[string]error
}

func newMockBus() *mockBus {
	return &mockBus{failOn: make(map[string]error)}
}

func (m *mockBus) add(e busEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.failOn[e.kind]
}

func (m *mockBus) Session() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *mockBus) setSession(n uint64) {
	m.mu.Lock()
	m.session = n
	m.mu.Unlock()
}

func (m *mockBus) AnnounceDevice(dsuid string) error {
	return m.add(busEvent{kind: "announce", dsuid: dsuid})
}

func (m *mockBus) VanishDevice(dsuid string) error {
	return m.add(busEvent{kind: "vanish", dsuid: dsuid})
}

func (m *mockBus) IdentifyDevice(dsuid string) error {
	return m.add(busEvent{kind: "identify", dsuid: dsuid})
}

func (m *mockBus) PushProperty(dsuid string, props []Property) error {
	return m.add(busEvent{kind: "push", dsuid: dsuid, props: props})
}

func (m *mockBus) SendPong(dsuid string) error {
	return m.add(busEvent{kind: "pong", dsuid: dsuid})
}

func (m *mockBus) Respond(requestID string, data any, err error) error {
	return m.add(busEvent{kind: "response", reqID: requestID, data: data, err: err})
}

func (m *mockBus) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.kind)
	}
	return out
}

func (m *mockBus) last() busEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return busEvent{}
	}
	return m.events[len(m.events)-1]
}

func (m *mockBus) reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

// mockRepo records persisted state.
type mockRepo struct {
	mu       sync.Mutex
	scenes   map[int]Scene
	slots    map[int]int
	settings map[string]string
	writes   int
	states   []DeviceState

	// onSaveSetting runs at the start of SaveSetting when set.
	onSaveSetting func()
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		scenes:   make(map[int]Scene),
		slots:    make(map[int]int),
		settings: make(map[string]string),
	}
}

func (m *mockRepo) SaveScene(_ context.Context, slot int, sc Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[sc.ID] = sc
	m.slots[sc.ID] = slot
	return nil
}

func (m *mockRepo) SaveSetting(_ context.Context, key, value string) error {
	if m.onSaveSetting != nil {
		m.onSaveSetting()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	m.writes++
	return nil
}

func (m *mockRepo) RecordState(_ context.Context, st DeviceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, st)
	return nil
}

// mockTelemetry records the last reading per value name.
type mockTelemetry struct {
	mu     sync.Mutex
	points map[string]float64
}

func (m *mockTelemetry) RecordReading(_ string, name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points == nil {
		m.points = make(map[string]float64)
	}
	m.points[name] = value
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	testDeviceDSUID = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA00"
	testVDCDSUID    = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB00"
	testLibDSUID    = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC00"
)

// testHarness bundles a bridge with its mocks.
type testHarness struct {
	bridge    *Bridge
	cloud     *mockCloud
	bus       *mockBus
	repo      *mockRepo
	telemetry *mockTelemetry
	clock     *fakeClock
}

func newTestHarness(t *testing.T, scenes ...Scene) *testHarness {
	t.Helper()

	h := &testHarness{
		cloud: newMockCloud(map[string]any{
			"isPoweredOn":        false,
			"currentTemperature": float64(21),
		}),
		bus:       newMockBus(),
		repo:      newMockRepo(),
		telemetry: &mockTelemetry{},
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)},
	}

	b, err := NewBridge(BridgeOptions{
		Identity: Identity{
			DeviceDSUID: testDeviceDSUID,
			VDCDSUID:    testVDCDSUID,
			LibDSUID:    testLibDSUID,
			SaunaID:     "sauna-42",
			Name:        "Garden",
			Hostname:    "pi",
			ConfigURL:   "http://pi:8090",
		},
		Sensors: []SensorDef{
			{Name: "currentTemperature", Kind: 1, Usage: 1},
			{Name: "T1", Kind: 1, Usage: 1},
		},
		Binaries: []BinaryDef{
			{Name: "isPoweredOn", Function: 0},
			{Name: "isConnected", Function: 0},
		},
		Scenes:     scenes,
		Cloud:      h.cloud,
		Bus:        h.bus,
		Repository: h.repo,
		Telemetry:  h.telemetry,
		Clock:      h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	h.bridge = b
	return h
}

// settle drives the ladder until it is idle with an open session.
func (h *testHarness) settle(t *testing.T) {
	t.Helper()
	h.bus.setSession(1)
	for i := 0; i < 5; i++ {
		if h.bridge.Tick() == LifecycleIdle {
			h.bus.reset()
			return
		}
	}
	t.Fatal("lifecycle did not settle")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var errTest = errors.New("test failure")

func (m *mockBus) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}
