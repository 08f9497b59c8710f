package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/vending-service/internal/api/dto"
	"github.com/spec-kit/vending-service/internal/service"
)

// DevicesHandler reports controller presence.
type DevicesHandler struct {
	tracker *service.PresenceTracker
}

// NewDevicesHandler returns a new handler instance.
func NewDevicesHandler(tracker *service.PresenceTracker) *DevicesHandler {
	return &DevicesHandler{tracker: tracker}
}

// List returns the last observed heartbeat per device.
func (h *DevicesHandler) List(c *fiber.Ctx) error {
	snapshot := h.tracker.Snapshot()

	devices := make([]dto.DeviceStatusResponse, 0, len(snapshot))
	for id, status := range snapshot {
		devices = append(devices, dto.DeviceStatusResponse{
			DeviceID: id,
			LastSeen: status.LastSeen,
			UptimeMs: status.UptimeMs,
		})
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})

	return c.JSON(fiber.Map{"devices": devices})
}
