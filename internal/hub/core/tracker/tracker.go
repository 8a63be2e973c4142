package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
)

// ContactSink receives last-contact updates for asynchronous persistence.
// Push must not block.
type ContactSink interface {
	Push(update *model.ContactUpdate)
}

// Tracker owns the in-memory liveness view of every device seen since start.
// Reads never wait on bus or storage I/O.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry

	devices  core.DeviceRepository
	contacts ContactSink
}

type entry struct {
	mu     sync.Mutex
	status model.DeviceStatus
}

// New creates a Tracker. contacts may be nil, in which case status messages
// are not persisted.
func New(devices core.DeviceRepository, contacts ContactSink) *Tracker {
	return &Tracker{
		entries:  make(map[string]*entry),
		devices:  devices,
		contacts: contacts,
	}
}

// entry returns the entry for id, creating it when missing.
func (t *Tracker) entry(id string) *entry {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[id]; ok {
		return e
	}
	e = &entry{status: model.DeviceStatus{DeviceID: id, State: model.LivenessOnline}}
	t.entries[id] = e
	return e
}

// RecordRequest registers contact from a request message and upserts the
// durable device row, creating it on first contact. An offline device comes
// back online; a reported updating or error state is left as is.
func (t *Tracker) RecordRequest(ctx context.Context, deviceID, address, version string, at time.Time) (*model.Device, error) {
	e := t.entry(deviceID)

	e.mu.Lock()
	if !at.Before(e.status.LastSeen) {
		e.status.LastSeen = at
		if e.status.State == model.LivenessOffline {
			e.status.State = model.LivenessOnline
		}
	}
	if address != "" {
		e.status.Address = address
	}
	if version != "" {
		e.status.FirmwareVersion = version
	}
	e.mu.Unlock()

	dev, err := t.devices.Upsert(ctx, &model.Device{
		ID:       deviceID,
		Address:  address,
		LastSeen: at,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", deviceID, err)
	}
	return dev, nil
}

// RecordStatus applies a telemetry report. The reported state wins unless the
// report is older than what the tracker already holds.
func (t *Tracker) RecordStatus(deviceID string, msg *model.StatusMessage, at time.Time) model.DeviceStatus {
	e := t.entry(deviceID)

	e.mu.Lock()
	if !at.Before(e.status.LastSeen) {
		e.status.LastSeen = at
		e.status.State = msg.Liveness()
		if msg.IP != "" {
			e.status.Address = msg.IP
		}
		if msg.RSSI != nil {
			e.status.RSSI = msg.RSSI
		}
		if msg.Uptime != nil {
			e.status.Uptime = msg.Uptime
		}
		if msg.FreeHeap != nil {
			e.status.FreeHeap = msg.FreeHeap
		}
	}
	snapshot := e.status
	e.mu.Unlock()

	if t.contacts != nil {
		t.contacts.Push(&model.ContactUpdate{
			DeviceID: deviceID,
			Address:  snapshot.Address,
			LastSeen: snapshot.LastSeen,
		})
	}

	return snapshot
}

// Get returns a copy of the device's status.
func (t *Tracker) Get(deviceID string) (model.DeviceStatus, bool) {
	t.mu.RLock()
	e, ok := t.entries[deviceID]
	t.mu.RUnlock()
	if !ok {
		return model.DeviceStatus{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// List returns a copy of every status, in no particular order.
func (t *Tracker) List() []model.DeviceStatus {
	return t.ListByState("")
}

// ListByState returns the statuses in the given state; an empty state returns all.
func (t *Tracker) ListByState(state model.Liveness) []model.DeviceStatus {
	out := make([]model.DeviceStatus, 0)
	for _, e := range t.snapshot() {
		e.mu.Lock()
		s := e.status
		e.mu.Unlock()
		if state == "" || s.State == state {
			out = append(out, s)
		}
	}
	return out
}

// Counts returns the number of devices per liveness state.
func (t *Tracker) Counts() map[model.Liveness]int {
	counts := make(map[model.Liveness]int, len(model.Livenesses))
	for _, l := range model.Livenesses {
		counts[l] = 0
	}
	for _, s := range t.List() {
		counts[s.State]++
	}
	return counts
}

// SweepExpired marks offline every device not heard from for longer than
// threshold and returns how many changed. Repeated sweeps with the same now
// change nothing.
func (t *Tracker) SweepExpired(now time.Time, threshold time.Duration) int {
	transitioned := 0
	for _, e := range t.snapshot() {
		e.mu.Lock()
		if e.status.State != model.LivenessOffline && now.Sub(e.status.LastSeen) > threshold {
			e.status.State = model.LivenessOffline
			transitioned++
		}
		e.mu.Unlock()
	}
	return transitioned
}

func (t *Tracker) snapshot() []*entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}
