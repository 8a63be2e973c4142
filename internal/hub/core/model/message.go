package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMessage is returned when an inbound payload lacks a required field.
var ErrInvalidMessage = errors.New("invalid message")

// RequestMessage is published by a device on the shared request topic when it boots
// or asks for firmware.
type RequestMessage struct {
	DeviceID  string   `json:"device_id"`
	IP        string   `json:"ip"`
	Version   *string  `json:"version,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

func (m *RequestMessage) Validate() error {
	if strings.TrimSpace(m.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidMessage)
	}
	if strings.Contains(m.DeviceID, "/") || strings.ContainsAny(m.DeviceID, "+#") {
		return fmt.Errorf("%w: device_id %q is not a valid topic level", ErrInvalidMessage, m.DeviceID)
	}
	return nil
}

// VersionOrEmpty returns the announced version or "".
func (m *RequestMessage) VersionOrEmpty() string {
	if m.Version == nil {
		return ""
	}
	return *m.Version
}

// StatusMessage is periodic device telemetry. All fields are optional.
type StatusMessage struct {
	IP       string   `json:"ip"`
	RSSI     *float64 `json:"rssi,omitempty"`
	Uptime   *float64 `json:"uptime,omitempty"`
	FreeHeap *float64 `json:"free_heap,omitempty"`
	Status   *string  `json:"status,omitempty"`
}

func (m *StatusMessage) Validate() error {
	return nil
}

// Liveness returns the state the report maps to.
func (m *StatusMessage) Liveness() Liveness {
	if m.Status == nil {
		return LivenessOnline
	}
	return LivenessFromReport(*m.Status)
}

// LogMessage is one log line forwarded by a device.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (m *LogMessage) Validate() error {
	if m.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}
	return nil
}

// LevelOrDefault returns the reported level, lowercased, or "info".
func (m *LogMessage) LevelOrDefault() string {
	if m.Level == "" {
		return "info"
	}
	return strings.ToLower(m.Level)
}

// Progress values a device may report on the ack topic before the outcome is known.
var progressStatuses = map[string]struct{}{
	"in_progress": {},
	"downloading": {},
	"updating":    {},
}

// AckMessage reports the outcome, or progress, of a deployment.
type AckMessage struct {
	Success   *bool    `json:"success,omitempty"`
	Message   *string  `json:"message,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

func (m *AckMessage) Validate() error {
	if m.Success == nil && !m.IsProgress() {
		return fmt.Errorf("%w: success is required", ErrInvalidMessage)
	}
	return nil
}

// IsProgress reports whether the ack only signals that installation is under
// way: no positive outcome and a progress status. Devices announce the start
// of an update as success=false with status UPDATING.
func (m *AckMessage) IsProgress() bool {
	if m.Succeeded() || m.Status == nil {
		return false
	}
	_, ok := progressStatuses[strings.ToLower(*m.Status)]
	return ok
}

// Succeeded reports a positive terminal outcome.
func (m *AckMessage) Succeeded() bool {
	return m.Success != nil && *m.Success
}

// MessageOrEmpty returns the device-supplied message or "".
func (m *AckMessage) MessageOrEmpty() string {
	if m.Message == nil {
		return ""
	}
	return *m.Message
}

// FirmwareResponse is published on a device's response topic to start an update.
type FirmwareResponse struct {
	FirmwareURL     string `json:"firmware_url"`
	CurrentFirmware string `json:"current_firmware"`
	Timestamp       int64  `json:"timestamp"`
	DeviceID        string `json:"device_id"`
}

// CommandEnvelope is published on a device's command topic.
type CommandEnvelope struct {
	Command   string         `json:"command"`
	Params    map[string]any `json:"params"`
	Timestamp int64          `json:"timestamp"`
}

// Well-known commands.
const (
	CommandRestart   = "restart"
	CommandHeartbeat = "heartbeat"
)

// DeviceLogEntry is a retained device log line.
type DeviceLogEntry struct {
	DeviceID  string    `json:"device_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
