package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/klafs-vdc/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the first connection attempt.
	connectTimeout = 10 * time.Second

	// ackTimeout bounds the wait for a publish or subscribe acknowledgement.
	ackTimeout = 5 * time.Second

	// disconnectQuiesce is the grace period in milliseconds for in-flight work.
	disconnectQuiesce = 1000

	keepAlive = 60 * time.Second

	maxQoS = 2

	// maxPayloadSize caps a single message at 1MB.
	maxPayloadSize = 1 << 20
)

// brokerURL builds the paho broker address, ssl:// when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions translates the MQTT section of the config into paho
// options. Sessions are clean: the vDC host re-opens its session after a
// reconnect, so queued requests from a previous connection are stale.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// setWill registers the retained offline presence the broker publishes
// when the bridge disappears without a clean disconnect.
func setWill(opts *pahomqtt.ClientOptions, clientID string) {
	payload := presencePayload(clientID, PresenceOffline, reasonConnection, time.Now())
	opts.SetBinaryWill(PresenceTopic(clientID), payload, 1, true)
}

// await waits for a paho token and wraps a timeout or failure in kind.
func await(token pahomqtt.Token, kind error, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
