package core

import (
	"context"

	"github.com/roidota/roidota/internal/hub/core/model"
)

// Repository groups the durable stores the hub depends on.
// Implemented by the memory and sql adapters.
type Repository interface {
	Device() DeviceRepository
	Firmware() FirmwareRepository
	Deployment() DeploymentRepository
}

// DeviceRepository persists devices.
type DeviceRepository interface {
	// Upsert creates the device on first contact or refreshes its address and
	// last-seen time. CurrentFirmwareID and CreatedAt of an existing row are kept.
	Upsert(ctx context.Context, device *model.Device) (*model.Device, error)

	// Get returns ErrNotFound for unknown devices.
	Get(ctx context.Context, id string) (*model.Device, error)

	List(ctx context.Context) ([]*model.Device, error)

	// Touch applies buffered last-contact updates. Unknown devices are skipped.
	Touch(ctx context.Context, updates []model.ContactUpdate) error
}

// FirmwareRepository persists firmware metadata.
type FirmwareRepository interface {
	Create(ctx context.Context, fw *model.Firmware) error

	// Get returns ErrNotFound for unknown firmware.
	Get(ctx context.Context, id string) (*model.Firmware, error)

	List(ctx context.Context) ([]*model.Firmware, error)
}

// DeploymentRepository persists deployment records.
type DeploymentRepository interface {
	Create(ctx context.Context, rec *model.DeploymentRecord) error

	// Get returns ErrNotFound for unknown records.
	Get(ctx context.Context, id string) (*model.DeploymentRecord, error)

	// Find returns matching records ordered by AppliedAt, most recent first.
	Find(ctx context.Context, filter model.DeploymentFilter) ([]*model.DeploymentRecord, error)

	// Update overwrites the mutable fields of rec (status, completion, error).
	Update(ctx context.Context, rec *model.DeploymentRecord) error

	// Complete stores rec and, when advanceFirmware is set, points the device's
	// current firmware at rec.FirmwareID, as one atomic unit.
	Complete(ctx context.Context, rec *model.DeploymentRecord, advanceFirmware bool) error
}
