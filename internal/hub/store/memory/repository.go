package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
)

var _ core.Repository = (*Repository)(nil)

// Repository is a process-local implementation of core.Repository. It stores
// copies so callers can never mutate stored state through a returned pointer.
type Repository struct {
	mu          sync.RWMutex
	devices     map[string]model.Device
	firmware    map[string]model.Firmware
	deployments map[string]model.DeploymentRecord
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		devices:     make(map[string]model.Device),
		firmware:    make(map[string]model.Firmware),
		deployments: make(map[string]model.DeploymentRecord),
	}
}

func (r *Repository) Device() core.DeviceRepository         { return (*deviceRepo)(r) }
func (r *Repository) Firmware() core.FirmwareRepository     { return (*firmwareRepo)(r) }
func (r *Repository) Deployment() core.DeploymentRepository { return (*deploymentRepo)(r) }

type deviceRepo Repository

func (r *deviceRepo) Upsert(_ context.Context, d *model.Device) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.devices[d.ID]
	if !ok {
		cur = model.Device{ID: d.ID, CreatedAt: d.LastSeen, CurrentFirmwareID: d.CurrentFirmwareID}
		if !d.CreatedAt.IsZero() {
			cur.CreatedAt = d.CreatedAt
		}
	}
	if d.Address != "" {
		cur.Address = d.Address
	}
	if d.LastSeen.After(cur.LastSeen) {
		cur.LastSeen = d.LastSeen
	}
	r.devices[d.ID] = cur

	out := cur
	return &out, nil
}

func (r *deviceRepo) Get(_ context.Context, id string) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &d, nil
}

func (r *deviceRepo) List(_ context.Context) ([]*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *deviceRepo) Touch(_ context.Context, updates []model.ContactUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		d, ok := r.devices[u.DeviceID]
		if !ok {
			continue
		}
		if u.LastSeen.After(d.LastSeen) {
			d.LastSeen = u.LastSeen
		}
		if u.Address != "" {
			d.Address = u.Address
		}
		r.devices[u.DeviceID] = d
	}
	return nil
}

type firmwareRepo Repository

func (r *firmwareRepo) Create(_ context.Context, fw *model.Firmware) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.firmware[fw.ID] = *fw
	return nil
}

func (r *firmwareRepo) Get(_ context.Context, id string) (*model.Firmware, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fw, ok := r.firmware[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &fw, nil
}

func (r *firmwareRepo) List(_ context.Context) ([]*model.Firmware, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Firmware, 0, len(r.firmware))
	for _, fw := range r.firmware {
		fw := fw
		out = append(out, &fw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type deploymentRepo Repository

func (r *deploymentRepo) Create(_ context.Context, rec *model.DeploymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deployments[rec.ID] = copyRecord(rec)
	return nil
}

func (r *deploymentRepo) Get(_ context.Context, id string) (*model.DeploymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.deployments[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := copyRecord(&rec)
	return &out, nil
}

func (r *deploymentRepo) Find(_ context.Context, f model.DeploymentFilter) ([]*model.DeploymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.DeploymentRecord, 0)
	for _, rec := range r.deployments {
		if !f.Matches(&rec) {
			continue
		}
		c := copyRecord(&rec)
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].AppliedAt.After(out[j].AppliedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *deploymentRepo) Update(_ context.Context, rec *model.DeploymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deployments[rec.ID]; !ok {
		return core.ErrNotFound
	}
	r.deployments[rec.ID] = copyRecord(rec)
	return nil
}

func (r *deploymentRepo) Complete(_ context.Context, rec *model.DeploymentRecord, advanceFirmware bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deployments[rec.ID]; !ok {
		return core.ErrNotFound
	}

	if advanceFirmware {
		d, ok := r.devices[rec.DeviceID]
		if !ok {
			return core.ErrNotFound
		}
		d.CurrentFirmwareID = rec.FirmwareID
		r.devices[rec.DeviceID] = d
	}

	r.deployments[rec.ID] = copyRecord(rec)
	return nil
}

func copyRecord(rec *model.DeploymentRecord) model.DeploymentRecord {
	out := *rec
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
