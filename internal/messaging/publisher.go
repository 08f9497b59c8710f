package messaging

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/observability"
)

// Publisher abstracts the broker for the unlock service.
type Publisher interface {
	SendUnlock(deviceID string, port int, orderID, token string, durationMs int) error
}

// CommandPublisher formats and publishes unlock commands. It does not
// retry; a failed publish surfaces to the unlock caller, who may repeat
// the whole flow with a fresh token.
type CommandPublisher struct {
	client  *Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCommandPublisher creates the publisher.
func NewCommandPublisher(client *Client, logger *zap.Logger, metrics *observability.Metrics) *CommandPublisher {
	return &CommandPublisher{client: client, logger: logger, metrics: metrics}
}

// SendUnlock publishes one unlock command to the device's command topic.
func (p *CommandPublisher) SendUnlock(deviceID string, port int, orderID, token string, durationMs int) error {
	cmd := UnlockCommand{
		Type:       CommandTypeUnlock,
		Port:       port,
		OrderID:    orderID,
		Token:      token,
		DurationMs: durationMs,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	topic := CommandTopic(deviceID)
	if err := p.client.Publish(topic, payload); err != nil {
		p.logger.Error("unlock publish failed",
			zap.String("topic", topic),
			zap.String("order_id", orderID),
			zap.Error(err))
		return err
	}

	p.metrics.RecordPublish(deviceID)
	p.logger.Info("published unlock command",
		zap.String("topic", topic),
		zap.String("order_id", orderID),
		zap.Int("port", port),
		zap.Int("duration_ms", durationMs))
	return nil
}
