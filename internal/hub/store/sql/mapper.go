package sql

import (
	"github.com/roidota/roidota/internal/hub/core/model"
)

func toDeviceModel(d *model.Device) *deviceModel {
	m := &deviceModel{
		ID:        d.ID,
		Address:   d.Address,
		LastSeen:  d.LastSeen,
		CreatedAt: d.CreatedAt,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = d.LastSeen
	}
	if d.CurrentFirmwareID != "" {
		fw := d.CurrentFirmwareID
		m.CurrentFirmwareID = &fw
	}
	return m
}

func fromDeviceModel(m *deviceModel) *model.Device {
	d := &model.Device{
		ID:        m.ID,
		Address:   m.Address,
		LastSeen:  m.LastSeen,
		CreatedAt: m.CreatedAt,
	}
	if m.CurrentFirmwareID != nil {
		d.CurrentFirmwareID = *m.CurrentFirmwareID
	}
	return d
}

func toFirmwareModel(f *model.Firmware) *firmwareModel {
	return &firmwareModel{
		ID:          f.ID,
		Name:        f.Name,
		Version:     f.Version,
		ArtifactKey: f.ArtifactKey,
		Size:        f.Size,
		CreatedAt:   f.CreatedAt,
	}
}

func fromFirmwareModel(m *firmwareModel) *model.Firmware {
	return &model.Firmware{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		ArtifactKey: m.ArtifactKey,
		Size:        m.Size,
		CreatedAt:   m.CreatedAt,
	}
}

func toDeploymentModel(r *model.DeploymentRecord) *deploymentModel {
	return &deploymentModel{
		ID:           r.ID,
		DeviceID:     r.DeviceID,
		FirmwareID:   r.FirmwareID,
		Status:       string(r.Status),
		AppliedAt:    r.AppliedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
		Rollback:     r.Rollback,
	}
}

func fromDeploymentModel(m *deploymentModel) *model.DeploymentRecord {
	return &model.DeploymentRecord{
		ID:           m.ID,
		DeviceID:     m.DeviceID,
		FirmwareID:   m.FirmwareID,
		Status:       model.DeploymentStatus(m.Status),
		AppliedAt:    m.AppliedAt,
		CompletedAt:  m.CompletedAt,
		ErrorMessage: m.ErrorMessage,
		Rollback:     m.Rollback,
	}
}
