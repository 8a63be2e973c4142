package core

import "errors"

var (
	// ErrNotFound is returned by repositories when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoOpenDeployment is returned when an acknowledgement arrives for a
	// device that has no pending or in-progress deployment.
	ErrNoOpenDeployment = errors.New("no open deployment for device")

	// ErrNoRollbackTarget is returned when a device has fewer than two
	// successful deployments to roll back across.
	ErrNoRollbackTarget = errors.New("no previous successful firmware to roll back to")

	// ErrDeploymentInProgress is returned when a device already has an open deployment.
	ErrDeploymentInProgress = errors.New("deployment already in progress for device")

	// ErrInvalidArgument is returned for malformed management requests.
	ErrInvalidArgument = errors.New("invalid argument")
)
