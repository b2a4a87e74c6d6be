package domain

import (
	"context"
	"time"
)

// DeviceKind categorizes registered presentation endpoints.
type DeviceKind string

const (
	DeviceHeadset DeviceKind = "headset"
	DeviceDesktop DeviceKind = "desktop"
	DeviceMobile  DeviceKind = "mobile"
)

// Device is a registered presentation endpoint. Devices are registered lazily
// on first use of a given device id.
type Device struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Kind        DeviceKind `json:"kind"`
	Connected   bool       `json:"connected"`
	LastSeen    time.Time  `json:"last_seen"`
}

// DeviceStore persists device registrations.
type DeviceStore interface {
	Get(ctx context.Context, id string) (*Device, error)
	Put(ctx context.Context, device *Device) error
}
