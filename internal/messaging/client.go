package messaging

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second

	// QoS 1: acknowledged delivery to the broker, not end-to-end to the
	// device.
	qosAtLeastOnce byte = 1
)

type subscription struct {
	filter  string
	handler mqtt.MessageHandler
}

// Client owns the long-lived broker connection. Subscriptions are
// replayed after a reconnect since sessions are not persisted.
type Client struct {
	inner  mqtt.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs []subscription
}

// NewClient connects to the broker and blocks until the connection is
// established or the timeout elapses.
func NewClient(cfg config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID("vending-service-" + uuid.NewString()[:8]).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout)

	if cfg.TLS {
		// The broker fleet presents certificates the controllers cannot
		// validate either; peer verification stays off on both sides.
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	opts.SetOnConnectHandler(func(inner mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL()))
		c.resubscribe(inner)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c.inner = mqtt.NewClient(opts)

	token := c.inner.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.BrokerURL())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL(), err)
	}
	return c, nil
}

// Publish sends one message at QoS 1 and waits for the broker ack.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.inner.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter at QoS 1 and records
// it for replay on reconnect.
func (c *Client) Subscribe(filter string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs = append(c.subs, subscription{filter: filter, handler: handler})
	c.mu.Unlock()

	token := c.inner.Subscribe(filter, qosAtLeastOnce, handler)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe to %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	c.logger.Info("mqtt subscribed", zap.String("filter", filter))
	return nil
}

func (c *Client) resubscribe(inner mqtt.Client) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		token := inner.Subscribe(sub.filter, qosAtLeastOnce, sub.handler)
		if token.WaitTimeout(connectTimeout) && token.Error() == nil {
			continue
		}
		c.logger.Error("mqtt resubscribe failed",
			zap.String("filter", sub.filter),
			zap.Error(token.Error()))
	}
}

// IsConnected reports broker connectivity for readiness probes.
func (c *Client) IsConnected() bool {
	return c.inner != nil && c.inner.IsConnected()
}

// Close disconnects from the broker, allowing in-flight work to drain.
func (c *Client) Close() {
	if c.inner != nil && c.inner.IsConnected() {
		c.inner.Disconnect(250)
	}
}
