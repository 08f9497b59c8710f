package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topic layout shared with the door controllers: commands go to a
// per-device topic, events come back on a sibling topic that the service
// subscribes to with a single-level wildcard.
const (
	EventTopicFilter = "vending/+/events"

	CommandTypeUnlock = "unlock"

	EventTypeDoorOpen  = "door_open"
	EventTypeHeartbeat = "heartbeat"
)

// ErrUnknownEventType reports an event whose type the service does not
// handle. Such events are dropped, not failed.
var ErrUnknownEventType = errors.New("unknown event type")

// UnlockCommand is published to a controller to actuate one door port.
type UnlockCommand struct {
	Type       string `json:"type"`
	Port       int    `json:"port"`
	OrderID    string `json:"orderId"`
	Token      string `json:"token"`
	DurationMs int    `json:"durationMs"`
}

// DoorOpenEvent reports that a controller actuated a door. Correlation
// with the issuing request is entirely by token content; there is no
// request/response pairing on the wire.
type DoorOpenEvent struct {
	Door      int    `json:"door"`
	OrderID   string `json:"orderId"`
	Token     string `json:"token"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatEvent is periodic controller liveness traffic.
type HeartbeatEvent struct {
	UptimeMs  int64  `json:"uptimeMs,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Event is the closed set of inbound event payloads.
type Event interface {
	eventType() string
}

func (DoorOpenEvent) eventType() string  { return EventTypeDoorOpen }
func (HeartbeatEvent) eventType() string { return EventTypeHeartbeat }

type eventEnvelope struct {
	Type string `json:"type"`
}

// DecodeEvent parses an inbound event payload into its typed variant.
// Parsing fails closed: malformed JSON, a missing type tag, or missing
// required fields all return an error and the message is dropped.
func DecodeEvent(payload []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	switch envelope.Type {
	case EventTypeDoorOpen:
		var evt DoorOpenEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("malformed door_open event: %w", err)
		}
		if evt.Door <= 0 {
			return nil, errors.New("door_open event missing door number")
		}
		if evt.OrderID == "" {
			return nil, errors.New("door_open event missing orderId")
		}
		return evt, nil
	case EventTypeHeartbeat:
		var evt HeartbeatEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("malformed heartbeat event: %w", err)
		}
		return evt, nil
	case "":
		return nil, errors.New("event payload missing type")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, envelope.Type)
	}
}

// CommandTopic returns the command topic for a device.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("vending/%s/cmd", deviceID)
}

// DeviceIDFromTopic extracts the device segment from a vending topic.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
