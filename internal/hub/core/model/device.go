package model

import (
	"strings"
	"time"
)

// Device is the durable record of a device that has contacted the hub.
type Device struct {
	// ID is the externally assigned, unique device identifier.
	ID string

	// Address is the last network address the device reported.
	Address string

	// LastSeen is the last time the hub heard from the device.
	LastSeen time.Time

	// CurrentFirmwareID references the firmware the device last confirmed
	// installing. Empty until the first successful deployment.
	CurrentFirmwareID string

	CreatedAt time.Time
}

// Liveness is the hub's view of whether a device is reachable.
type Liveness string

const (
	LivenessOnline   Liveness = "online"
	LivenessUpdating Liveness = "updating"
	LivenessError    Liveness = "error"
	LivenessOffline  Liveness = "offline"
)

// Livenesses lists every state in display order.
var Livenesses = []Liveness{LivenessOnline, LivenessUpdating, LivenessError, LivenessOffline}

// LivenessFromReport maps a device-reported status string onto a liveness
// state, ignoring case. Anything other than "updating" or "error" counts as
// online.
func LivenessFromReport(status string) Liveness {
	switch Liveness(strings.ToLower(status)) {
	case LivenessUpdating:
		return LivenessUpdating
	case LivenessError:
		return LivenessError
	default:
		return LivenessOnline
	}
}

// DeviceStatus is the in-memory liveness and telemetry snapshot of one device.
type DeviceStatus struct {
	DeviceID string   `json:"device_id"`
	State    Liveness `json:"state"`

	LastSeen time.Time `json:"last_seen"`
	Address  string    `json:"ip,omitempty"`

	// Telemetry as last reported; nil when the device never sent the field.
	RSSI     *float64 `json:"rssi,omitempty"`
	Uptime   *float64 `json:"uptime,omitempty"`
	FreeHeap *float64 `json:"free_heap,omitempty"`

	// FirmwareVersion is the version announced in the last request message.
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// ContactUpdate is a last-contact refresh buffered for the durable store.
type ContactUpdate struct {
	DeviceID string
	Address  string
	LastSeen time.Time
}
