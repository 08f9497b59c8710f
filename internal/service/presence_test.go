package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/vending-service/internal/messaging"
)

func TestPresenceTracker(t *testing.T) {
	t.Parallel()

	tracker := NewPresenceTracker()
	require.Empty(t, tracker.Snapshot())

	tracker.HandleHeartbeat("esp-test-1", messaging.HeartbeatEvent{UptimeMs: 5000})
	tracker.HandleHeartbeat("", messaging.HeartbeatEvent{})

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 1)
	require.EqualValues(t, 5000, snapshot["esp-test-1"].UptimeMs)
	require.False(t, snapshot["esp-test-1"].LastSeen.IsZero())
}
