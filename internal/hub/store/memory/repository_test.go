package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDeviceUpsertKeepsFirmwareAndCreation(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	d, err := r.Device().Upsert(ctx, &model.Device{ID: "esp-01", Address: "10.0.0.1", LastSeen: epoch})
	require.NoError(t, err)
	assert.Equal(t, epoch, d.CreatedAt)

	require.NoError(t, r.Deployment().Create(ctx, &model.DeploymentRecord{ID: "d1", DeviceID: "esp-01", FirmwareID: "fw-1"}))
	require.NoError(t, r.Deployment().Complete(ctx, &model.DeploymentRecord{
		ID: "d1", DeviceID: "esp-01", FirmwareID: "fw-1", Status: model.DeploymentSuccess,
	}, true))

	d, err = r.Device().Upsert(ctx, &model.Device{ID: "esp-01", LastSeen: epoch.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "fw-1", d.CurrentFirmwareID)
	assert.Equal(t, epoch, d.CreatedAt)
	assert.Equal(t, "10.0.0.1", d.Address, "empty address keeps the known one")
	assert.Equal(t, epoch.Add(time.Minute), d.LastSeen)
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	_, err := r.Device().Upsert(ctx, &model.Device{ID: "esp-01", LastSeen: epoch})
	require.NoError(t, err)

	require.NoError(t, r.Device().Touch(ctx, []model.ContactUpdate{
		{DeviceID: "esp-01", LastSeen: epoch.Add(-time.Minute)},
		{DeviceID: "ghost", LastSeen: epoch},
	}))

	d, err := r.Device().Get(ctx, "esp-01")
	require.NoError(t, err)
	assert.Equal(t, epoch, d.LastSeen)

	_, err = r.Device().Get(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	require.NoError(t, r.Deployment().Create(ctx, &model.DeploymentRecord{ID: "d1", Status: model.DeploymentPending}))

	got, err := r.Deployment().Get(ctx, "d1")
	require.NoError(t, err)
	got.Status = model.DeploymentSuccess

	again, err := r.Deployment().Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentPending, again.Status)
}

func TestFindOrdersAndFilters(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	recs := []model.DeploymentRecord{
		{ID: "a", DeviceID: "esp-01", Status: model.DeploymentSuccess, AppliedAt: epoch},
		{ID: "b", DeviceID: "esp-01", Status: model.DeploymentPending, AppliedAt: epoch.Add(time.Minute)},
		{ID: "c", DeviceID: "esp-02", Status: model.DeploymentInProgress, AppliedAt: epoch.Add(2 * time.Minute)},
	}
	for i := range recs {
		require.NoError(t, r.Deployment().Create(ctx, &recs[i]))
	}

	all, err := r.Deployment().Find(ctx, model.DeploymentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	open, err := r.Deployment().Find(ctx, model.DeploymentFilter{
		Statuses:      model.OpenDeploymentStatuses,
		AppliedBefore: epoch.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ID)

	limited, err := r.Deployment().Find(ctx, model.DeploymentFilter{DeviceID: "esp-01", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestCompleteUnknownDevice(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	rec := &model.DeploymentRecord{ID: "d1", DeviceID: "ghost", FirmwareID: "fw-1", Status: model.DeploymentPending}
	require.NoError(t, r.Deployment().Create(ctx, rec))

	done := *rec
	done.Status = model.DeploymentSuccess
	assert.ErrorIs(t, r.Deployment().Complete(ctx, &done, true), core.ErrNotFound)

	stored, err := r.Deployment().Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentPending, stored.Status)

	assert.ErrorIs(t, r.Deployment().Update(ctx, &model.DeploymentRecord{ID: "missing"}), core.ErrNotFound)
}
