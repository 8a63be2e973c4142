package model

import (
	"fmt"
	"time"
)

// Firmware is an immutable firmware artifact stored in the object store.
type Firmware struct {
	ID      string
	Name    string
	Version string

	// ArtifactKey is the object key of the binary in the firmware bucket.
	ArtifactKey string
	Size        int64

	CreatedAt time.Time
}

// DisplayName is the name sent to devices as current_firmware.
func (f *Firmware) DisplayName() string {
	if f.Version == "" {
		return f.Name
	}
	return fmt.Sprintf("%s_v%s", f.Name, f.Version)
}

// ArtifactKeyFor returns the object key a new upload is stored under:
// firmware/<name>_v<version>_<unix millis>.bin
func ArtifactKeyFor(name, version string, at time.Time) string {
	return fmt.Sprintf("firmware/%s_v%s_%d.bin", name, version, at.UnixMilli())
}
