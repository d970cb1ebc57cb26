package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

// Client publishes feederpull run events to an MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected bool
	connMu    sync.RWMutex

	onDisconnect func(err error)
	callbackMu   sync.RWMutex
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Registers a retained Last Will on the status topic
//  3. Connects with a timeout and publishes a retained "online" status
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled, or a wrapped ErrConnectionFailed
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics.Status(), cfg.Broker.ClientID)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.connMu.Lock()
		c.connected = true
		c.connMu.Unlock()
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnectHandler runs asynchronously; mark connected now so the
	// status publish below is not refused.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	if err := c.Publish(c.topics.Status(), buildStatusPayload(cfg.Broker.ClientID, "online", ""), c.qos(), true); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Topics returns the topic builder bound to the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// Close publishes a retained graceful "offline" status and disconnects.
// Calling Close on an unconnected or nil client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildStatusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown")
		token := c.client.Publish(c.topics.Status(), c.qos(), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports ErrNotConnected when the broker connection is gone.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

func (c *Client) qos() byte {
	// #nosec G115 -- QoS validated to 0..2 by config.Validate
	return byte(c.cfg.QoS)
}
