package service

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/deployment"
	"github.com/roidota/roidota/internal/hub/core/tracker"
)

// Options tunes the service.
type Options struct {
	// URLExpiry is the lifetime of presigned firmware download URLs.
	URLExpiry time.Duration

	// BatchConcurrency caps parallel dispatches in BatchDeploy.
	BatchConcurrency int
}

// Service implements the hub's use cases. Inbound bus handlers and the
// management layer both go through it.
type Service struct {
	devices  core.DeviceRepository
	firmware core.FirmwareRepository

	tracker  *tracker.Tracker
	machine  *deployment.Machine
	logs     *tracker.LogBuffer
	notifier core.DeviceNotifier
	storage  core.Storage
	clock    clock.PassiveClock

	opts Options
}

// New creates the hub service.
func New(
	repo core.Repository,
	tr *tracker.Tracker,
	machine *deployment.Machine,
	logs *tracker.LogBuffer,
	notifier core.DeviceNotifier,
	storage core.Storage,
	clk clock.PassiveClock,
	opts Options,
) *Service {
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 1
	}

	return &Service{
		devices:  repo.Device(),
		firmware: repo.Firmware(),
		tracker:  tr,
		machine:  machine,
		logs:     logs,
		notifier: notifier,
		storage:  storage,
		clock:    clk,
		opts:     opts,
	}
}
