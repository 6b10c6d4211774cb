package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/klafs-vdc/internal/infrastructure/config"
)

// Client is the bridge's broker connection.
//
// All methods are safe for concurrent use. Subscriptions made through
// Subscribe survive reconnects.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	connected atomic.Bool

	// mu guards subs, the connection hooks and the logger.
	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho invokes handlers on its own
// goroutines, so they must not block for long. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and announces the bridge as online.
//
// The Last Will is registered before dialling so that the broker marks the
// bridge offline if the process dies. Once connected, paho reconnects on
// its own with the configured backoff.
//
// Parameters:
//   - cfg: MQTT section of the bridge configuration
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed if the broker is not reachable in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	setWill(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), ErrConnectionFailed, connectTimeout); err != nil {
		// Stop the background connect retry.
		c.paho.Disconnect(0)
		return nil, err
	}

	// The on-connect hook runs asynchronously; mark the client usable now.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.publishPresence(PresenceOnline, "")

	c.mu.RLock()
	hook := c.onConnect
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)
	c.log().Warn("MQTT connection lost", "error", err)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// restoreSubscriptions re-registers every tracked subscription. It runs
// on paho's on-connect goroutine.
func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.RUnlock()

	for topic, s := range subs {
		if err := await(c.paho.Subscribe(topic, s.qos, c.deliver(s.handler)), ErrSubscribeFailed, ackTimeout); err != nil {
			c.log().Error("MQTT resubscribe failed", "topic", topic, "error", err)
		}
	}
	if len(subs) > 0 {
		c.log().Info("MQTT subscriptions restored", "count", len(subs))
	}
}

func (c *Client) publishPresence(status, reason string) {
	id := c.cfg.Broker.ClientID
	token := c.paho.Publish(PresenceTopic(id), byte(c.cfg.QoS), true, presencePayload(id, status, reason, time.Now())) //nolint:gosec // QoS validated 0-2 by config
	if err := await(token, ErrPublishFailed, ackTimeout); err != nil {
		c.log().Warn("MQTT presence publish failed", "status", status, "error", err)
	}
}

// Close publishes a clean offline presence and disconnects. It is a no-op
// on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishPresence(PresenceOffline, reasonShutdown)
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers a hook run after every (re)connect.
func (c *Client) SetOnConnect(hook func()) {
	c.mu.Lock()
	c.onConnect = hook
	c.mu.Unlock()
}

// SetOnDisconnect registers a hook run when the connection drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.mu.Lock()
	c.onDisconnect = hook
	c.mu.Unlock()
}

// SetLogger sets the logger for connection events and handler failures.
// Without one these are discarded.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Publish sends payload to topic and waits for the broker acknowledgement.
//
// Retain only presence and health messages; vDC requests, responses and
// pushes are transient.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed, ackTimeout)
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription is tracked and restored after a reconnect;
// subscribing again to the same topic replaces the handler.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.deliver(handler)), ErrSubscribeFailed, ackTimeout); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return err
	}
	return nil
}

// subscribed reports whether topic is tracked for restoration.
func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// deliver adapts a MessageHandler to paho, recovering panics and logging
// handler errors.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
