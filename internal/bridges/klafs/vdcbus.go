package klafs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// ContainerInfo is announced to the vDC host when a session opens.
type ContainerInfo struct {
	DSUID    string    `json:"dsuid"`
	LibDSUID string    `json:"lib_dsuid,omitempty"`
	Name     string    `json:"name"`
	Model    string    `json:"model"`
	Time     time.Time `json:"timestamp"`
}

// VDCBusOptions configures a VDCBus.
type VDCBusOptions struct {
	Client      MQTTClient
	TopicPrefix string
	VDCDSUID    string
	LibDSUID    string

	// Name and Model describe the container in announce_container.
	Name  string
	Model string

	// QoS for all publishes and subscriptions. Default: 1.
	QoS byte

	Logger Logger
}

// VDCBus carries the vDC API over MQTT. It tracks the session, decodes
// inbound requests and publishes announcements, pushes and responses.
//
// Thread Safety: All methods are safe for concurrent use.
type VDCBus struct {
	mqtt   MQTTClient
	topics Topics
	qos    byte
	info   ContainerInfo
	logger Logger

	session    atomic.Uint64
	sessionSeq atomic.Uint64

	handlerMu sync.RWMutex
	onRequest func(Request) bool
}

// NewVDCBus creates a bus transport. Call Start to subscribe.
func NewVDCBus(opts VDCBusOptions) (*VDCBus, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.VDCDSUID == "" {
		return nil, fmt.Errorf("container dsUID is required")
	}
	qos := opts.QoS
	if qos > 2 {
		qos = 1
	}
	return &VDCBus{
		mqtt:   opts.Client,
		topics: Topics{Prefix: opts.TopicPrefix, VDCDSUID: opts.VDCDSUID},
		qos:    qos,
		info: ContainerInfo{
			DSUID:    opts.VDCDSUID,
			LibDSUID: opts.LibDSUID,
			Name:     opts.Name,
			Model:    opts.Model,
		},
		logger: opts.Logger,
	}, nil
}

// Topics returns the topic builder of this container.
func (v *VDCBus) Topics() Topics {
	return v.topics
}

// SetRequestHandler sets the sink for decoded requests (normally
// Bridge.Submit). Session requests are handled by the bus itself.
func (v *VDCBus) SetRequestHandler(fn func(Request) bool) {
	v.handlerMu.Lock()
	v.onRequest = fn
	v.handlerMu.Unlock()
}

// Start subscribes to the request topics.
func (v *VDCBus) Start() error {
	topic := v.topics.RequestSubscribe()
	if err := v.mqtt.Subscribe(topic, v.qos, v.handleMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	v.logInfo("subscribed to vdc requests", "topic", topic)
	return nil
}

// Session returns the current session number, 0 when none is open.
func (v *VDCBus) Session() uint64 {
	return v.session.Load()
}

// EndSession closes the current session. Called on session end requests
// and when the broker connection drops.
func (v *VDCBus) EndSession(reason string) {
	if v.session.Swap(0) != 0 {
		v.logWarn("vdc session ended", "reason", reason)
	}
}

func (v *VDCBus) beginSession() {
	n := v.sessionSeq.Add(1)
	v.session.Store(n)

	info := v.info
	info.Time = time.Now().UTC()
	if err := v.publish(v.topics.AnnounceContainer(), info); err != nil {
		v.logWarn("container announce failed", "error", err)
		return
	}
	v.logInfo("new session, container announced", "session", n)
}

// handleMessage decodes one inbound request.
func (v *VDCBus) handleMessage(topic string, payload []byte) {
	kind := RequestKind(topic[strings.LastIndex(topic, "/")+1:])

	if kind == RequestSession {
		var msg SessionMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			v.logWarn("invalid session message", "error", err)
			return
		}
		if msg.Active {
			v.beginSession()
		} else {
			v.EndSession("session closed by host")
		}
		return
	}

	switch kind {
	case RequestPing, RequestGet, RequestSet, RequestCallScene,
		RequestSaveScene, RequestRemove, RequestGeneric:
	default:
		v.logWarn("unknown request kind", "topic", topic)
		return
	}

	var msg RequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		v.logWarn("invalid request payload", "topic", topic, "error", err)
		return
	}

	v.handlerMu.RLock()
	fn := v.onRequest
	v.handlerMu.RUnlock()
	if fn == nil {
		v.logWarn("no request handler, dropping request", "kind", kind)
		return
	}
	fn(Request{Kind: kind, RequestMessage: msg})
}

// AnnounceDevice announces the device under this container.
func (v *VDCBus) AnnounceDevice(dsuid string) error {
	return v.publishDevice(v.topics.Announce(), dsuid)
}

// VanishDevice tells the host the device is gone.
func (v *VDCBus) VanishDevice(dsuid string) error {
	return v.publishDevice(v.topics.Vanish(), dsuid)
}

// IdentifyDevice signals that the device is present.
func (v *VDCBus) IdentifyDevice(dsuid string) error {
	return v.publishDevice(v.topics.Identify(), dsuid)
}

// SendPong answers a ping.
func (v *VDCBus) SendPong(dsuid string) error {
	return v.publishDevice(v.topics.Pong(), dsuid)
}

// PushProperty pushes property values for a device.
func (v *VDCBus) PushProperty(dsuid string, props []Property) error {
	return v.publish(v.topics.Push(), PushMessage{
		DSUID:      dsuid,
		Timestamp:  time.Now().UTC(),
		Properties: props,
	})
}

// Respond publishes the response for a request.
func (v *VDCBus) Respond(requestID string, data any, err error) error {
	return v.publish(v.topics.Response(requestID), NewResponse(requestID, data, err))
}

func (v *VDCBus) publishDevice(topic, dsuid string) error {
	return v.publish(topic, DeviceMessage{
		DSUID:     dsuid,
		VDCDSUID:  v.info.DSUID,
		Timestamp: time.Now().UTC(),
	})
}

func (v *VDCBus) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	if err := v.mqtt.Publish(topic, payload, v.qos, false); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (v *VDCBus) logInfo(msg string, keysAndValues ...any) {
	if v.logger != nil {
		v.logger.Info(msg, keysAndValues...)
	}
}

func (v *VDCBus) logWarn(msg string, keysAndValues ...any) {
	if v.logger != nil {
		v.logger.Warn(msg, keysAndValues...)
	}
}
