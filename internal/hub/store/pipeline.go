package store

import (
	"context"
	"time"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
)

const (
	defaultQueueSize = 5000
	maxBatch         = 1000
)

// ContactPipeline merges high-frequency last-contact updates in memory and
// writes them to the device repository in batches, so telemetry bursts never
// turn into one write per message.
type ContactPipeline struct {
	devices core.DeviceRepository

	// inputCh is the channel where high-velocity updates are pushed.
	inputCh chan *model.ContactUpdate

	// buffer stores the latest update per device until the next flush.
	buffer map[string]*model.ContactUpdate

	flushInterval time.Duration
}

// NewContactPipeline creates a pipeline flushing every flushInterval.
func NewContactPipeline(devices core.DeviceRepository, flushInterval time.Duration) *ContactPipeline {
	return &ContactPipeline{
		devices:       devices,
		inputCh:       make(chan *model.ContactUpdate, defaultQueueSize),
		buffer:        make(map[string]*model.ContactUpdate),
		flushInterval: flushInterval,
	}
}

// Start runs the merge loop until ctx is done, then flushes what is left.
func (p *ContactPipeline) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	log.Info("Contact pipeline started", "interval", p.flushInterval)

	for {
		select {
		case update := <-p.inputCh:
			p.merge(update)
			if len(p.buffer) >= maxBatch {
				p.flush(ctx)
			}

		case <-ticker.C:
			if len(p.buffer) > 0 {
				p.flush(ctx)
			}

		case <-ctx.Done():
			p.drain()
			p.flush(context.Background())
			return nil
		}
	}
}

// Push queues an update without blocking. When the queue is full the update
// is dropped; the next status message from the device carries a newer one.
func (p *ContactPipeline) Push(update *model.ContactUpdate) {
	select {
	case p.inputCh <- update:
	default:
		metrics.ContactUpdatesDropped.Inc()
		log.Warn("Contact pipeline full, dropping update", "device", update.DeviceID)
	}
}

// merge keeps the most recent update per device.
func (p *ContactPipeline) merge(update *model.ContactUpdate) {
	if cur, ok := p.buffer[update.DeviceID]; ok && cur.LastSeen.After(update.LastSeen) {
		return
	}
	p.buffer[update.DeviceID] = update
}

func (p *ContactPipeline) drain() {
	for {
		select {
		case update := <-p.inputCh:
			p.merge(update)
		default:
			return
		}
	}
}

func (p *ContactPipeline) flush(ctx context.Context) {
	if len(p.buffer) == 0 {
		return
	}

	batch := make([]model.ContactUpdate, 0, len(p.buffer))
	for _, u := range p.buffer {
		batch = append(batch, *u)
	}
	p.buffer = make(map[string]*model.ContactUpdate)

	if err := p.devices.Touch(ctx, batch); err != nil {
		log.Error(err, "Failed to write contact updates", "count", len(batch))
		return
	}
	log.Debug("Contact pipeline flushed", "count", len(batch))
}
