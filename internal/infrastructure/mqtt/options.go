package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

// Connection constants.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive    = 30 * time.Second
	defaultMaxReconnect = 30 * time.Second
	defaultWriteTimeout = defaultPublishTimeout
	maxQoS              = 2
	tlsMinVersion       = tls.VersionTLS12
)

// buildClientOptions creates paho options from the feederpull config.
//
// A batch run lives for minutes, so the initial connect is not retried:
// an unreachable broker is reported to the caller, which carries on
// without run events. Reconnects after a drop are still automatic.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(defaultMaxReconnect)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetWriteTimeout(defaultWriteTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT makes the broker publish a retained "offline" status on the
// status topic if the process dies without calling Close.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	opts.SetBinaryWill(topic, buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// statusPayload is the body of retained status messages.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(clientID, status, reason string) []byte {
	// Marshal of a struct of strings cannot fail.
	b, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}
