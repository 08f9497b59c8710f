package messaging

import (
	"context"
	"errors"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/observability"
)

// DoorOpenHandler consumes validated-shape door_open events. The handler
// owns all credential checks; the subscriber only decodes.
type DoorOpenHandler interface {
	HandleDoorOpen(ctx context.Context, deviceID string, evt DoorOpenEvent)
}

// HeartbeatHandler consumes controller heartbeats.
type HeartbeatHandler interface {
	HandleHeartbeat(deviceID string, evt HeartbeatEvent)
}

// EventSubscriber listens on the wildcard events topic and routes typed
// events to their handlers. Anything it cannot decode is logged and
// dropped; the event path has no caller to report to.
type EventSubscriber struct {
	client    *Client
	doorOpen  DoorOpenHandler
	heartbeat HeartbeatHandler
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewEventSubscriber creates the subscriber. The heartbeat handler may
// be nil.
func NewEventSubscriber(client *Client, doorOpen DoorOpenHandler, heartbeat HeartbeatHandler, logger *zap.Logger, metrics *observability.Metrics) *EventSubscriber {
	return &EventSubscriber{
		client:    client,
		doorOpen:  doorOpen,
		heartbeat: heartbeat,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start subscribes to confirmation events from all devices.
func (s *EventSubscriber) Start() error {
	return s.client.Subscribe(EventTopicFilter, s.onMessage)
}

func (s *EventSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID := DeviceIDFromTopic(msg.Topic())

	evt, err := DecodeEvent(msg.Payload())
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			s.logger.Debug("ignoring event",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
			return
		}
		s.metrics.RecordConfirmation("malformed_event")
		s.logger.Warn("dropping malformed event",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}

	switch e := evt.(type) {
	case DoorOpenEvent:
		s.doorOpen.HandleDoorOpen(context.Background(), deviceID, e)
	case HeartbeatEvent:
		if s.heartbeat != nil {
			s.heartbeat.HandleHeartbeat(deviceID, e)
		}
	}
}
