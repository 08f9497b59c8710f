package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEventDoorOpen(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"door_open","door":1,"orderId":"order-1","token":"tok","timestamp":"2026-08-29T10:00:00Z"}`)
	evt, err := DecodeEvent(payload)
	require.NoError(t, err)

	doorOpen, ok := evt.(DoorOpenEvent)
	require.True(t, ok)
	require.Equal(t, 1, doorOpen.Door)
	require.Equal(t, "order-1", doorOpen.OrderID)
	require.Equal(t, "tok", doorOpen.Token)
}

func TestDecodeEventHeartbeat(t *testing.T) {
	t.Parallel()

	evt, err := DecodeEvent([]byte(`{"type":"heartbeat","uptimeMs":1234}`))
	require.NoError(t, err)

	hb, ok := evt.(HeartbeatEvent)
	require.True(t, ok)
	require.Equal(t, int64(1234), hb.UptimeMs)
}

func TestDecodeEventFailsClosed(t *testing.T) {
	t.Parallel()

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"type":`))
		require.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"door":1}`))
		require.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"type":"vend_complete"}`))
		require.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("door_open without door", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"type":"door_open","orderId":"order-1"}`))
		require.Error(t, err)
	})

	t.Run("door_open without orderId", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"type":"door_open","door":1}`))
		require.Error(t, err)
	})
}

func TestTopics(t *testing.T) {
	t.Parallel()

	require.Equal(t, "vending/esp-test-1/cmd", CommandTopic("esp-test-1"))
	require.Equal(t, "esp-test-1", DeviceIDFromTopic("vending/esp-test-1/events"))
	require.Equal(t, "", DeviceIDFromTopic("events"))
}
