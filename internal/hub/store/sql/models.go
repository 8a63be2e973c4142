package sql

import "time"

type deviceModel struct {
	ID                string    `gorm:"primaryKey;size:128"`
	Address           string    `gorm:"size:64"`
	LastSeen          time.Time `gorm:"index"`
	CurrentFirmwareID *string   `gorm:"size:36"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (deviceModel) TableName() string { return "devices" }

type firmwareModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"size:128;not null"`
	Version     string `gorm:"size:64"`
	ArtifactKey string `gorm:"size:512;uniqueIndex;not null"`
	Size        int64
	CreatedAt   time.Time `gorm:"index"`
}

func (firmwareModel) TableName() string { return "firmware" }

type deploymentModel struct {
	ID           string     `gorm:"primaryKey;size:36"`
	DeviceID     string     `gorm:"size:128;not null;index:idx_deployments_device_applied,priority:1"`
	FirmwareID   string     `gorm:"size:36;not null"`
	Status       string     `gorm:"size:16;not null;index"`
	AppliedAt    time.Time  `gorm:"not null;index:idx_deployments_device_applied,priority:2,sort:desc"`
	CompletedAt  *time.Time
	ErrorMessage string `gorm:"type:text"`
	Rollback     bool   `gorm:"not null;default:false"`
}

func (deploymentModel) TableName() string { return "deployments" }

// allModels is the schema managed by AutoMigrate.
var allModels = []any{&deviceModel{}, &firmwareModel{}, &deploymentModel{}}
