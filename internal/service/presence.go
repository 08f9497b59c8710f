package service

import (
	"sync"
	"time"

	"github.com/spec-kit/vending-service/internal/messaging"
)

// DeviceStatus is the last observed liveness of one controller.
type DeviceStatus struct {
	LastSeen time.Time `json:"lastSeen"`
	UptimeMs int64     `json:"uptimeMs,omitempty"`
}

// PresenceTracker records controller heartbeats. Purely observational:
// nothing in the unlock or confirmation path depends on it.
type PresenceTracker struct {
	mu   sync.RWMutex
	seen map[string]DeviceStatus
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{seen: make(map[string]DeviceStatus)}
}

// HandleHeartbeat records a heartbeat from a device.
func (t *PresenceTracker) HandleHeartbeat(deviceID string, evt messaging.HeartbeatEvent) {
	if deviceID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[deviceID] = DeviceStatus{
		LastSeen: time.Now(),
		UptimeMs: evt.UptimeMs,
	}
}

// Snapshot returns a copy of the current device statuses.
func (t *PresenceTracker) Snapshot() map[string]DeviceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]DeviceStatus, len(t.seen))
	for id, status := range t.seen {
		out[id] = status
	}
	return out
}
