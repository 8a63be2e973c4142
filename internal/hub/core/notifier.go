package core

import (
	"context"

	"github.com/roidota/roidota/internal/hub/core/model"
)

// DeviceNotifier delivers outbound messages to devices.
// Implemented by the MQTT outbound adapter.
type DeviceNotifier interface {
	// SendCommand publishes a command envelope on the device's command topic.
	SendCommand(ctx context.Context, deviceID string, cmd *model.CommandEnvelope) error

	// PublishFirmware publishes a firmware response on the device's response topic.
	PublishFirmware(ctx context.Context, deviceID string, resp *model.FirmwareResponse) error
}
