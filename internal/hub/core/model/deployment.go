package model

import "time"

// DeploymentStatus is the lifecycle state of a deployment record.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "PENDING"
	DeploymentInProgress DeploymentStatus = "IN_PROGRESS"
	DeploymentSuccess    DeploymentStatus = "SUCCESS"
	DeploymentFailed     DeploymentStatus = "FAILED"
	DeploymentTimeout    DeploymentStatus = "TIMEOUT"
)

// OpenDeploymentStatuses are the non-terminal states.
var OpenDeploymentStatuses = []DeploymentStatus{DeploymentPending, DeploymentInProgress}

// IsTerminal reports whether no further transition is possible.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentSuccess, DeploymentFailed, DeploymentTimeout:
		return true
	default:
		return false
	}
}

// DeploymentRecord tracks one firmware rollout to one device.
type DeploymentRecord struct {
	ID         string           `json:"id"`
	DeviceID   string           `json:"device_id"`
	FirmwareID string           `json:"firmware_id"`
	Status     DeploymentStatus `json:"status"`

	AppliedAt   time.Time  `json:"applied_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	// Rollback marks records created by the rollback path.
	Rollback bool `json:"rollback,omitempty"`
}

// Open reports whether the record still awaits an outcome.
func (r *DeploymentRecord) Open() bool {
	return !r.Status.IsTerminal()
}

// DeploymentFilter narrows a deployment query. Results are ordered by
// AppliedAt, most recent first.
type DeploymentFilter struct {
	// DeviceID restricts results to one device when set.
	DeviceID string

	// Statuses restricts results to these states when non-empty.
	Statuses []DeploymentStatus

	// AppliedBefore keeps records applied strictly before this instant when non-zero.
	AppliedBefore time.Time

	// Limit caps the number of results when positive.
	Limit int
}

// Matches reports whether r satisfies every set criterion of f.
func (f DeploymentFilter) Matches(r *DeploymentRecord) bool {
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	if !f.AppliedBefore.IsZero() && !r.AppliedAt.Before(f.AppliedBefore) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// DispatchStatus values reported to the management layer.
const (
	DispatchPending = "pending"
	DispatchFailed  = "failed"
)

// DispatchResult confirms that a deployment was dispatched. It says nothing
// about whether the device has installed the firmware.
type DispatchResult struct {
	DeviceID     string `json:"device_id"`
	FirmwareID   string `json:"firmware_id"`
	DeploymentID string `json:"deployment_id,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// BatchResult summarizes a multi-device deployment.
type BatchResult struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DispatchResult `json:"results"`
}
