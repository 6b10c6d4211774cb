package klafs

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT records publishes and captures the request handler.
type mockMQTT struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]func(string, []byte)
	connected bool
	pubErr    error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]func(string, []byte)), connected: true}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pubErr != nil {
		return m.pubErr
	}
	m.published = append(m.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) deliver(topic string, payload string) {
	m.mu.Lock()
	h := m.handlers["vdc/"+testVDCDSUID+"/request/+"]
	m.mu.Unlock()
	h(topic, []byte(payload))
}

func (m *mockMQTT) lastPublished() publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return publishedMsg{}
	}
	return m.published[len(m.published)-1]
}

func newTestVDCBus(t *testing.T) (*VDCBus, *mockMQTT) {
	t.Helper()
	client := newMockMQTT()
	bus, err := NewVDCBus(VDCBusOptions{
		Client:   client,
		VDCDSUID: testVDCDSUID,
		LibDSUID: testLibDSUID,
		Name:     "Klafs Sauna Garden",
		Model:    "Klafs Sauna",
		QoS:      1,
	})
	if err != nil {
		t.Fatalf("NewVDCBus() error = %v", err)
	}
	if err := bus.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return bus, client
}

func TestVDCBus_SessionLifecycle(t *testing.T) {
	bus, client := newTestVDCBus(t)
	base := "vdc/" + testVDCDSUID

	if bus.Session() != 0 {
		t.Fatal("session open before host asked")
	}

	client.deliver(base+"/request/session", `{"active":true}`)
	first := bus.Session()
	if first == 0 {
		t.Fatal("session not opened")
	}

	msg := client.lastPublished()
	if msg.topic != base+"/announce_container" {
		t.Fatalf("published to %s, want announce_container", msg.topic)
	}
	var info ContainerInfo
	if err := json.Unmarshal(msg.payload, &info); err != nil {
		t.Fatalf("decode announce: %v", err)
	}
	if info.DSUID != testVDCDSUID || info.LibDSUID != testLibDSUID {
		t.Errorf("announce = %+v", info)
	}

	client.deliver(base+"/request/session", `{"active":false}`)
	if bus.Session() != 0 {
		t.Error("session still open after close")
	}

	client.deliver(base+"/request/session", `{"active":true}`)
	if second := bus.Session(); second == first || second == 0 {
		t.Errorf("new session number = %d, want different from %d", second, first)
	}

	bus.EndSession("broker connection lost")
	if bus.Session() != 0 {
		t.Error("EndSession did not close the session")
	}
}

func TestVDCBus_ForwardsRequests(t *testing.T) {
	bus, client := newTestVDCBus(t)
	base := "vdc/" + testVDCDSUID

	var got []Request
	bus.SetRequestHandler(func(r Request) bool {
		got = append(got, r)
		return true
	})

	client.deliver(base+"/request/call_scene", `{"request_id":"a1","dsuid":"`+testDeviceDSUID+`","scene":5}`)
	client.deliver(base+"/request/get", `not json`)
	client.deliver(base+"/request/teleport", `{}`)
	client.deliver(base+"/request/generic", `{"request_id":"a2","method":"invokeDeviceAction","properties":[{"name":"id","value":"ActTurnOff"}]}`)

	if len(got) != 2 {
		t.Fatalf("forwarded %d requests, want 2", len(got))
	}
	if got[0].Kind != RequestCallScene || got[0].Scene == nil || *got[0].Scene != 5 {
		t.Errorf("first request = %+v", got[0])
	}
	if id, _ := got[1].Properties[0].String(); got[1].Kind != RequestGeneric || id != "ActTurnOff" {
		t.Errorf("second request = %+v", got[1])
	}
}

func TestVDCBus_Publishes(t *testing.T) {
	bus, client := newTestVDCBus(t)
	base := "vdc/" + testVDCDSUID

	tests := []struct {
		name  string
		do    func() error
		topic string
	}{
		{"announce", func() error { return bus.AnnounceDevice(testDeviceDSUID) }, base + "/announce"},
		{"vanish", func() error { return bus.VanishDevice(testDeviceDSUID) }, base + "/vanish"},
		{"identify", func() error { return bus.IdentifyDevice(testDeviceDSUID) }, base + "/identify"},
		{"pong", func() error { return bus.SendPong(testDeviceDSUID) }, base + "/pong"},
		{"push", func() error { return bus.PushProperty(testDeviceDSUID, []Property{deviceStates()}) }, base + "/push"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.do(); err != nil {
				t.Fatalf("error = %v", err)
			}
			msg := client.lastPublished()
			if msg.topic != tt.topic {
				t.Errorf("topic = %s, want %s", msg.topic, tt.topic)
			}
			if msg.retained || msg.qos != 1 {
				t.Errorf("qos/retained = %d/%v, want 1/false", msg.qos, msg.retained)
			}
		})
	}
}

func TestVDCBus_RespondErrorCode(t *testing.T) {
	bus, client := newTestVDCBus(t)

	if err := bus.Respond("req-9", nil, ErrNotConfigured); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	msg := client.lastPublished()
	if msg.topic != "vdc/"+testVDCDSUID+"/response/req-9" {
		t.Errorf("topic = %s", msg.topic)
	}
	var resp ResponseMessage
	if err := json.Unmarshal(msg.payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeNotConfigured {
		t.Errorf("response = %+v", resp)
	}
}

func TestVDCBus_PublishError(t *testing.T) {
	bus, client := newTestVDCBus(t)
	client.pubErr = errors.New("not connected")
	if err := bus.SendPong(testDeviceDSUID); err == nil {
		t.Error("SendPong() expected error")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotFound, ErrCodeNotFound},
		{ErrMissingData, ErrCodeMissingData},
		{ErrInvalidValueType, ErrCodeInvalidValueType},
		{ErrNotConfigured, ErrCodeNotConfigured},
		{ErrSecurityCheckRequired, ErrCodeSecurityCheckRequired},
		{ErrConfigChangeFailed, ErrCodeConfigChangeFailed},
		{ErrNotImplemented, ErrCodeNotImplemented},
		{ErrUnknownAction, ErrCodeInvalidCommand},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
