package deployment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/clock"
	"k8s.io/utils/keymutex"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
)

// Machine owns the lifecycle of deployment records. Every read-then-write on
// a device's records happens under that device's lock, so an acknowledgement
// and the timeout sweep can never both terminalize the same record.
type Machine struct {
	repo  core.DeploymentRepository
	clock clock.PassiveClock
	locks keymutex.KeyMutex

	// open maps a device to its single open record. It is a cache over the
	// repository; Recover rebuilds it at startup.
	mu   sync.RWMutex
	open map[string]string
}

// NewMachine creates a Machine over repo.
func NewMachine(repo core.DeploymentRepository, clk clock.PassiveClock) *Machine {
	return &Machine{
		repo:  repo,
		clock: clk,
		locks: keymutex.NewHashed(0),
		open:  make(map[string]string),
	}
}

func (m *Machine) lock(deviceID string) func() {
	m.locks.LockKey(deviceID)
	return func() { _ = m.locks.UnlockKey(deviceID) }
}

func (m *Machine) indexed(deviceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[deviceID]
	return id, ok
}

func (m *Machine) index(deviceID, recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[deviceID] = recordID
}

func (m *Machine) unindex(deviceID, recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[deviceID] == recordID {
		delete(m.open, deviceID)
	}
}

// Recover rebuilds the open-record index from the repository and returns the
// number of devices with an open deployment.
func (m *Machine) Recover(ctx context.Context) (int, error) {
	recs, err := m.repo.Find(ctx, model.DeploymentFilter{Statuses: model.OpenDeploymentStatuses})
	if err != nil {
		return 0, fmt.Errorf("load open deployments: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = make(map[string]string)
	for _, rec := range recs {
		// Most recent first: the first record seen per device is the one acks resolve to.
		if _, seen := m.open[rec.DeviceID]; seen {
			log.Warn("Device has more than one open deployment, older one left to the timeout sweep",
				"device", rec.DeviceID, "deployment", rec.ID)
			continue
		}
		m.open[rec.DeviceID] = rec.ID
	}
	return len(m.open), nil
}

// openRecord resolves the device's open record. Caller holds the device lock.
func (m *Machine) openRecord(ctx context.Context, deviceID string) (*model.DeploymentRecord, error) {
	if id, ok := m.indexed(deviceID); ok {
		rec, err := m.repo.Get(ctx, id)
		switch {
		case err == nil && rec.Open():
			return rec, nil
		case err == nil || errors.Is(err, core.ErrNotFound):
			m.unindex(deviceID, id)
		default:
			return nil, err
		}
	}

	recs, err := m.repo.Find(ctx, model.DeploymentFilter{
		DeviceID: deviceID,
		Statuses: model.OpenDeploymentStatuses,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, core.ErrNoOpenDeployment
	}

	m.index(deviceID, recs[0].ID)
	return recs[0], nil
}

// Record creates a PENDING record for deviceID. It fails with
// ErrDeploymentInProgress while the device has another open record.
func (m *Machine) Record(ctx context.Context, deviceID, firmwareID string, rollback bool) (*model.DeploymentRecord, error) {
	defer m.lock(deviceID)()

	existing, err := m.openRecord(ctx, deviceID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s (deployment %s)", core.ErrDeploymentInProgress, deviceID, existing.ID)
	case !errors.Is(err, core.ErrNoOpenDeployment):
		return nil, err
	}

	rec := &model.DeploymentRecord{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		FirmwareID: firmwareID,
		Status:     model.DeploymentPending,
		AppliedAt:  m.clock.Now(),
		Rollback:   rollback,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	m.index(deviceID, rec.ID)
	metrics.DeploymentTransitions.WithLabelValues(string(rec.Status)).Inc()
	log.Info("Deployment recorded", "device", deviceID, "firmware", firmwareID, "deployment", rec.ID, "rollback", rollback)

	return rec, nil
}

// OnAck terminalizes the device's open record. On success the device's
// current firmware advances in the same repository unit. When the write
// fails the record stays open and the error is returned.
func (m *Machine) OnAck(ctx context.Context, deviceID string, success bool, message string) (*model.DeploymentRecord, error) {
	defer m.lock(deviceID)()

	rec, err := m.openRecord(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	event := EventFail
	if success {
		event = EventSucceed
	}

	return m.terminate(ctx, rec, event, success, message)
}

// OnProgress moves the device's open record from PENDING to IN_PROGRESS.
// A record already in progress is returned unchanged.
func (m *Machine) OnProgress(ctx context.Context, deviceID, message string) (*model.DeploymentRecord, error) {
	defer m.lock(deviceID)()

	rec, err := m.openRecord(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	before := *rec
	applied, err := newLifecycle(rec, m.clock.Now).fire(ctx, EventProgress)
	if err != nil {
		return nil, err
	}
	if !applied {
		return rec, nil
	}

	if err := m.repo.Update(ctx, rec); err != nil {
		return &before, fmt.Errorf("update deployment %s: %w", rec.ID, err)
	}
	metrics.DeploymentTransitions.WithLabelValues(string(rec.Status)).Inc()
	log.Info("Deployment in progress", "device", deviceID, "deployment", rec.ID, "message", message)
	return rec, nil
}

// Fail terminalizes a specific record as FAILED, e.g. when the firmware
// response could not be published. A record that is already terminal is left
// untouched.
func (m *Machine) Fail(ctx context.Context, recordID, deviceID, message string) (*model.DeploymentRecord, error) {
	defer m.lock(deviceID)()

	rec, err := m.repo.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.Open() {
		return rec, nil
	}

	return m.terminate(ctx, rec, EventFail, false, message)
}

// terminate fires a terminal event and persists the result. Caller holds the device lock.
func (m *Machine) terminate(ctx context.Context, rec *model.DeploymentRecord, event string, advance bool, message string) (*model.DeploymentRecord, error) {
	stored := *rec

	applied, err := newLifecycle(rec, m.clock.Now).fire(ctx, event, message)
	if err != nil {
		return nil, err
	}
	if !applied {
		return rec, nil
	}

	if err := m.repo.Complete(ctx, rec, advance); err != nil {
		return &stored, fmt.Errorf("complete deployment %s: %w", rec.ID, err)
	}

	m.unindex(rec.DeviceID, rec.ID)
	metrics.DeploymentTransitions.WithLabelValues(string(rec.Status)).Inc()
	log.Info("Deployment completed", "device", rec.DeviceID, "deployment", rec.ID,
		"status", rec.Status, "message", rec.ErrorMessage)

	return rec, nil
}

// TimeoutPending terminalizes every open record applied more than timeout
// before now and returns how many were changed. Records terminalized
// concurrently by an acknowledgement are skipped.
func (m *Machine) TimeoutPending(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout)

	candidates, err := m.repo.Find(ctx, model.DeploymentFilter{
		Statuses:      model.OpenDeploymentStatuses,
		AppliedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("find expired deployments: %w", err)
	}

	var errs []error
	count := 0
	for _, c := range candidates {
		changed, err := m.timeoutOne(ctx, c.ID, c.DeviceID, now, timeout)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			count++
		}
	}

	return count, utilerrors.NewAggregate(errs)
}

func (m *Machine) timeoutOne(ctx context.Context, recordID, deviceID string, now time.Time, timeout time.Duration) (bool, error) {
	defer m.lock(deviceID)()

	// Re-read under the lock: an ack may have won the race.
	rec, err := m.repo.Get(ctx, recordID)
	if err != nil {
		return false, err
	}
	if !rec.Open() || now.Sub(rec.AppliedAt) <= timeout {
		return false, nil
	}

	if _, err := m.terminate(ctx, rec, EventTimeout, false, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Open returns the device's open record or ErrNoOpenDeployment.
func (m *Machine) Open(ctx context.Context, deviceID string) (*model.DeploymentRecord, error) {
	defer m.lock(deviceID)()
	return m.openRecord(ctx, deviceID)
}

// History returns the device's most recent records, newest first.
func (m *Machine) History(ctx context.Context, deviceID string, limit int) ([]*model.DeploymentRecord, error) {
	return m.repo.Find(ctx, model.DeploymentFilter{DeviceID: deviceID, Limit: limit})
}

// GlobalHistory returns the most recent records across all devices.
func (m *Machine) GlobalHistory(ctx context.Context, limit int) ([]*model.DeploymentRecord, error) {
	return m.repo.Find(ctx, model.DeploymentFilter{Limit: limit})
}

// Pending returns every open record.
func (m *Machine) Pending(ctx context.Context) ([]*model.DeploymentRecord, error) {
	return m.repo.Find(ctx, model.DeploymentFilter{Statuses: model.OpenDeploymentStatuses})
}

// PreviousSuccessfulFirmware returns the firmware of the device's
// second-most-recent successful deployment.
func (m *Machine) PreviousSuccessfulFirmware(ctx context.Context, deviceID string) (string, error) {
	recs, err := m.repo.Find(ctx, model.DeploymentFilter{
		DeviceID: deviceID,
		Statuses: []model.DeploymentStatus{model.DeploymentSuccess},
		Limit:    2,
	})
	if err != nil {
		return "", err
	}
	if len(recs) < 2 {
		return "", core.ErrNoRollbackTarget
	}
	return recs[1].FirmwareID, nil
}
