package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
)

// Deploy records a PENDING deployment of firmwareID to deviceID and publishes
// the firmware response. The result only confirms dispatch; the outcome
// arrives later on the device's ack topic.
func (s *Service) Deploy(ctx context.Context, deviceID, firmwareID string) (*model.DispatchResult, error) {
	return s.deploy(ctx, deviceID, firmwareID, false)
}

// Rollback redeploys the firmware of the device's previous successful
// deployment as a new record. Earlier records are never modified.
func (s *Service) Rollback(ctx context.Context, deviceID string) (*model.DispatchResult, error) {
	target, err := s.machine.PreviousSuccessfulFirmware(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: %w", deviceID, err)
	}

	log.Info("Rolling back device", "device", deviceID, "firmware", target)
	return s.deploy(ctx, deviceID, target, true)
}

// BatchDeploy deploys firmwareID to every device independently. A failure on
// one device never prevents the others from being attempted.
func (s *Service) BatchDeploy(ctx context.Context, deviceIDs []string, firmwareID string) *model.BatchResult {
	results := make([]model.DispatchResult, len(deviceIDs))

	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)

	for i, id := range deviceIDs {
		g.Go(func() error {
			res, err := s.deploy(ctx, id, firmwareID, false)
			if err != nil {
				results[i] = model.DispatchResult{
					DeviceID:   id,
					FirmwareID: firmwareID,
					Status:     model.DispatchFailed,
					Error:      err.Error(),
				}
				if res != nil {
					results[i].DeploymentID = res.DeploymentID
				}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	out := &model.BatchResult{Results: results}
	for _, r := range results {
		if r.Status == model.DispatchPending {
			out.Successful++
		} else {
			out.Failed++
		}
	}

	log.Info("Batch deployment dispatched", "firmware", firmwareID,
		"successful", out.Successful, "failed", out.Failed)
	return out
}

func (s *Service) deploy(ctx context.Context, deviceID, firmwareID string, rollback bool) (*model.DispatchResult, error) {
	if deviceID == "" || firmwareID == "" {
		return nil, fmt.Errorf("%w: device and firmware are required", core.ErrInvalidArgument)
	}

	fw, err := s.firmware.Get(ctx, firmwareID)
	if err != nil {
		return nil, fmt.Errorf("firmware %s: %w", firmwareID, err)
	}
	if _, err := s.devices.Get(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, err)
	}

	rec, err := s.machine.Record(ctx, deviceID, fw.ID, rollback)
	if err != nil {
		return nil, err
	}

	if err := s.sendFirmware(ctx, deviceID, fw); err != nil {
		if _, ferr := s.machine.Fail(ctx, rec.ID, deviceID, err.Error()); ferr != nil {
			log.Error(ferr, "Failed to mark deployment as failed", "device", deviceID, "deployment", rec.ID)
		}
		return &model.DispatchResult{
			DeviceID:     deviceID,
			FirmwareID:   fw.ID,
			DeploymentID: rec.ID,
			Status:       model.DispatchFailed,
			Error:        err.Error(),
		}, err
	}

	return &model.DispatchResult{
		DeviceID:     deviceID,
		FirmwareID:   fw.ID,
		DeploymentID: rec.ID,
		Status:       model.DispatchPending,
	}, nil
}

// sendFirmware publishes a freshly signed firmware response to the device.
func (s *Service) sendFirmware(ctx context.Context, deviceID string, fw *model.Firmware) error {
	url, err := s.storage.GeneratePresignedURL(ctx, fw.ArtifactKey, s.opts.URLExpiry)
	if err != nil {
		return fmt.Errorf("sign firmware url: %w", err)
	}

	return s.notifier.PublishFirmware(ctx, deviceID, &model.FirmwareResponse{
		FirmwareURL:     url,
		CurrentFirmware: fw.DisplayName(),
		Timestamp:       s.clock.Now().Unix(),
		DeviceID:        deviceID,
	})
}

// HandleAck applies a deployment acknowledgement from the device. An ack
// with no open deployment is counted and dropped.
func (s *Service) HandleAck(ctx context.Context, deviceID string, msg *model.AckMessage) error {
	var err error
	if msg.IsProgress() {
		_, err = s.machine.OnProgress(ctx, deviceID, msg.MessageOrEmpty())
	} else {
		_, err = s.machine.OnAck(ctx, deviceID, msg.Succeeded(), msg.MessageOrEmpty())
	}

	if errors.Is(err, core.ErrNoOpenDeployment) {
		metrics.OrphanAcks.Inc()
		log.FromContext(ctx).Warn("Ack without an open deployment", "device", deviceID, "success", msg.Succeeded())
		return nil
	}
	return err
}

// DeploymentHistory returns the device's most recent deployments, newest first.
func (s *Service) DeploymentHistory(ctx context.Context, deviceID string, limit int) ([]*model.DeploymentRecord, error) {
	return s.machine.History(ctx, deviceID, limit)
}

// GlobalDeploymentHistory returns the most recent deployments across all devices.
func (s *Service) GlobalDeploymentHistory(ctx context.Context, limit int) ([]*model.DeploymentRecord, error) {
	return s.machine.GlobalHistory(ctx, limit)
}

// PendingDeployments returns every deployment still awaiting an outcome.
func (s *Service) PendingDeployments(ctx context.Context) ([]*model.DeploymentRecord, error) {
	return s.machine.Pending(ctx)
}
