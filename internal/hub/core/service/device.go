package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/pkg/log"
)

// HandleRequest registers a device announcement. When the device still has an
// open deployment, the firmware response is sent again so that a device which
// rebooted mid-update picks it up.
func (s *Service) HandleRequest(ctx context.Context, msg *model.RequestMessage) error {
	now := s.clock.Now()

	if _, err := s.tracker.RecordRequest(ctx, msg.DeviceID, msg.IP, msg.VersionOrEmpty(), now); err != nil {
		return err
	}
	log.Info("Device request", "device", msg.DeviceID, "ip", msg.IP, "version", msg.VersionOrEmpty())

	rec, err := s.machine.Open(ctx, msg.DeviceID)
	if errors.Is(err, core.ErrNoOpenDeployment) {
		return nil
	}
	if err != nil {
		return err
	}

	fw, err := s.firmware.Get(ctx, rec.FirmwareID)
	if err != nil {
		return fmt.Errorf("firmware %s of deployment %s: %w", rec.FirmwareID, rec.ID, err)
	}

	log.Info("Resending firmware response for open deployment", "device", msg.DeviceID, "deployment", rec.ID)
	return s.sendFirmware(ctx, msg.DeviceID, fw)
}

// HandleStatus applies a telemetry report.
func (s *Service) HandleStatus(_ context.Context, deviceID string, msg *model.StatusMessage) error {
	st := s.tracker.RecordStatus(deviceID, msg, s.clock.Now())
	log.Debug("Device status", "device", deviceID, "state", st.State)
	return nil
}

// HandleLog retains a device log line and mirrors it into the hub log.
func (s *Service) HandleLog(_ context.Context, deviceID string, msg *model.LogMessage) error {
	level := msg.LevelOrDefault()
	s.logs.Append(model.DeviceLogEntry{
		DeviceID:  deviceID,
		Level:     level,
		Message:   msg.Message,
		Timestamp: s.clock.Now(),
	})

	kv := []any{"device", deviceID, "level", level, "message", msg.Message}
	switch level {
	case "error":
		log.Warn("Device log", kv...)
	case "debug":
		log.Debug("Device log", kv...)
	default:
		log.Info("Device log", kv...)
	}
	return nil
}

// SendCommand publishes command with params to the device.
func (s *Service) SendCommand(ctx context.Context, deviceID, command string, params map[string]any) error {
	if deviceID == "" || command == "" {
		return fmt.Errorf("%w: device and command are required", core.ErrInvalidArgument)
	}
	if params == nil {
		params = map[string]any{}
	}

	err := s.notifier.SendCommand(ctx, deviceID, &model.CommandEnvelope{
		Command:   command,
		Params:    params,
		Timestamp: s.clock.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", command, deviceID, err)
	}

	log.Info("Command sent", "device", deviceID, "command", command)
	return nil
}

func (s *Service) Restart(ctx context.Context, deviceID string) error {
	return s.SendCommand(ctx, deviceID, model.CommandRestart, nil)
}

func (s *Service) RequestHeartbeat(ctx context.Context, deviceID string) error {
	return s.SendCommand(ctx, deviceID, model.CommandHeartbeat, nil)
}

// DeviceStatus returns the tracked status of one device.
func (s *Service) DeviceStatus(deviceID string) (model.DeviceStatus, error) {
	st, ok := s.tracker.Get(deviceID)
	if !ok {
		return model.DeviceStatus{}, fmt.Errorf("device %s: %w", deviceID, core.ErrNotFound)
	}
	return st, nil
}

// ListDeviceStatuses returns tracked statuses in state; an empty state returns all.
func (s *Service) ListDeviceStatuses(state model.Liveness) []model.DeviceStatus {
	return s.tracker.ListByState(state)
}

// ListDevices returns the durable device records.
func (s *Service) ListDevices(ctx context.Context) ([]*model.Device, error) {
	return s.devices.List(ctx)
}

// RecentLogs returns up to n of the device's newest log lines, oldest first.
func (s *Service) RecentLogs(deviceID string, n int) []model.DeviceLogEntry {
	return s.logs.Recent(deviceID, n)
}

// SweepLiveness marks silent devices offline and returns how many changed.
func (s *Service) SweepLiveness(threshold time.Duration) int {
	return s.tracker.SweepExpired(s.clock.Now(), threshold)
}

// SweepDeployments times out open deployments older than timeout.
func (s *Service) SweepDeployments(ctx context.Context, timeout time.Duration) (int, error) {
	return s.machine.TimeoutPending(ctx, s.clock.Now(), timeout)
}

// DeviceCounts returns the number of tracked devices per liveness state.
func (s *Service) DeviceCounts() map[model.Liveness]int {
	return s.tracker.Counts()
}
