package dto

import "time"

// UnlockRequest payload.
type UnlockRequest struct {
	OrderID string `json:"orderId"`
	Door    int    `json:"door"`
	Email   string `json:"email,omitempty"`
}

// UnlockResponse returns the issued credential.
type UnlockResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
}

// DeviceStatusResponse reports last observed controller liveness.
type DeviceStatusResponse struct {
	DeviceID string    `json:"deviceId"`
	LastSeen time.Time `json:"lastSeen"`
	UptimeMs int64     `json:"uptimeMs,omitempty"`
}
