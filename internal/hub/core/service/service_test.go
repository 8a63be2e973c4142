package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/deployment"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/hub/core/tracker"
	"github.com/roidota/roidota/internal/hub/store/memory"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu        sync.Mutex
	commands  map[string][]*model.CommandEnvelope
	responses map[string][]*model.FirmwareResponse
	failFor   map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		commands:  make(map[string][]*model.CommandEnvelope),
		responses: make(map[string][]*model.FirmwareResponse),
		failFor:   make(map[string]bool),
	}
}

var errPublish = errors.New("publish timed out")

func (n *fakeNotifier) SendCommand(_ context.Context, id string, cmd *model.CommandEnvelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[id] {
		return errPublish
	}
	n.commands[id] = append(n.commands[id], cmd)
	return nil
}

func (n *fakeNotifier) PublishFirmware(_ context.Context, id string, resp *model.FirmwareResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[id] {
		return errPublish
	}
	n.responses[id] = append(n.responses[id], resp)
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("http://minio:9000/firmware/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (s *fakeStorage) PutObject(_ context.Context, key string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memory.Repository
	clock    *clocktesting.FakeClock
	notifier *fakeNotifier
	storage  *fakeStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.NewRepository()
	clk := clocktesting.NewFakeClock(epoch)
	n := newFakeNotifier()
	st := &fakeStorage{objects: make(map[string][]byte)}

	svc := New(repo,
		tracker.New(repo.Device(), nil),
		deployment.NewMachine(repo.Deployment(), clk),
		tracker.NewLogBuffer(10),
		n, st, clk,
		Options{URLExpiry: time.Hour, BatchConcurrency: 2},
	)
	return &fixture{svc: svc, repo: repo, clock: clk, notifier: n, storage: st}
}

func (f *fixture) announce(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.svc.HandleRequest(context.Background(), &model.RequestMessage{DeviceID: id, IP: "10.0.0.2"}))
	}
}

func (f *fixture) firmware(t *testing.T, name, version string) *model.Firmware {
	t.Helper()
	fw, err := f.svc.RegisterFirmware(context.Background(), name, version, "firmware/"+name+"_v"+version+".bin", 1024)
	require.NoError(t, err)
	return fw
}

func ack(success bool, msg string) *model.AckMessage {
	return &model.AckMessage{Success: &success, Message: &msg}
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")

	res, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchPending, res.Status)
	assert.NotEmpty(t, res.DeploymentID)

	require.Len(t, f.notifier.responses["esp-01"], 1)
	resp := f.notifier.responses["esp-01"][0]
	assert.Equal(t, "blink_v1.2", resp.CurrentFirmware)
	assert.Equal(t, "esp-01", resp.DeviceID)
	assert.Equal(t, epoch.Unix(), resp.Timestamp)
	assert.Contains(t, resp.FirmwareURL, fw.ArtifactKey)
	assert.Contains(t, resp.FirmwareURL, "expires=3600")

	pending, err := f.svc.PendingDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.DeploymentID, pending[0].ID)
}

func TestDeployValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")

	_, err := f.svc.Deploy(ctx, "esp-01", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.Deploy(ctx, "unknown-device", fw.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.Deploy(ctx, "", fw.ID)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.NoError(t, err)
	_, err = f.svc.Deploy(ctx, "esp-01", fw.ID)
	assert.ErrorIs(t, err, core.ErrDeploymentInProgress)

	history, err := f.svc.GlobalDeploymentHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDeployPublishFailureFailsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")
	f.notifier.failFor["esp-01"] = true

	res, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.ErrorIs(t, err, errPublish)
	assert.Equal(t, model.DispatchFailed, res.Status)

	history, err := f.svc.DeploymentHistory(ctx, "esp-01", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.DeploymentFailed, history[0].Status)
	assert.Contains(t, history[0].ErrorMessage, errPublish.Error())

	// The device is free for another attempt.
	f.notifier.failFor["esp-01"] = false
	_, err = f.svc.Deploy(ctx, "esp-01", fw.ID)
	assert.NoError(t, err)
}

func TestBatchDeployIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.announce(t, "a", "b", "c")
	fw := f.firmware(t, "blink", "1.2")
	f.notifier.failFor["b"] = true

	res := f.svc.BatchDeploy(context.Background(), []string{"a", "b", "c"}, fw.ID)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "a", res.Results[0].DeviceID)
	assert.Equal(t, model.DispatchPending, res.Results[0].Status)
	assert.Equal(t, "b", res.Results[1].DeviceID)
	assert.Equal(t, model.DispatchFailed, res.Results[1].Status)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.Equal(t, model.DispatchPending, res.Results[2].Status)
}

func TestAckAdvancesFirmware(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")

	_, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.NoError(t, err)

	progress := "downloading"
	require.NoError(t, f.svc.HandleAck(ctx, "esp-01", &model.AckMessage{Status: &progress}))
	pending, err := f.svc.PendingDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.DeploymentInProgress, pending[0].Status)

	require.NoError(t, f.svc.HandleAck(ctx, "esp-01", ack(true, "")))

	dev, err := f.repo.Device().Get(ctx, "esp-01")
	require.NoError(t, err)
	assert.Equal(t, fw.ID, dev.CurrentFirmwareID)
}

func TestDeviceAckSequence(t *testing.T) {
	const started = `{"device_id":"esp-01","success":false,"message":"Starting OTA","timestamp":1712,"status":"UPDATING"}`

	tests := []struct {
		name     string
		final    string
		want     model.DeploymentStatus
		advanced bool
	}{
		{"applied", `{"device_id":"esp-01","success":true,"message":"Update success. Rebooting...","timestamp":1790,"status":"UPDATING"}`, model.DeploymentSuccess, true},
		{"failed", `{"device_id":"esp-01","success":false,"message":"HTTP error: 404","timestamp":1790,"status":"ERROR"}`, model.DeploymentFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.announce(t, "esp-01")
			fw := f.firmware(t, "blink", "1.2")

			_, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
			require.NoError(t, err)

			decode := func(payload string) *model.AckMessage {
				var m model.AckMessage
				require.NoError(t, json.Unmarshal([]byte(payload), &m))
				require.NoError(t, m.Validate())
				return &m
			}

			require.NoError(t, f.svc.HandleAck(ctx, "esp-01", decode(started)))
			pending, err := f.svc.PendingDeployments(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, model.DeploymentInProgress, pending[0].Status)

			require.NoError(t, f.svc.HandleAck(ctx, "esp-01", decode(tt.final)))
			history, err := f.svc.DeploymentHistory(ctx, "esp-01", 0)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, tt.want, history[0].Status)

			dev, err := f.repo.Device().Get(ctx, "esp-01")
			require.NoError(t, err)
			assert.Equal(t, tt.advanced, dev.CurrentFirmwareID == fw.ID)
		})
	}
}

func TestOrphanAckIsDropped(t *testing.T) {
	f := newFixture(t)
	f.announce(t, "esp-01")

	assert.NoError(t, f.svc.HandleAck(context.Background(), "esp-01", ack(true, "")))
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	v1 := f.firmware(t, "blink", "1.0")
	v2 := f.firmware(t, "blink", "2.0")

	// Fewer than two successes: no target and nothing created.
	_, err := f.svc.Rollback(ctx, "esp-01")
	assert.ErrorIs(t, err, core.ErrNoRollbackTarget)
	history, err := f.svc.DeploymentHistory(ctx, "esp-01", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	for _, fw := range []*model.Firmware{v1, v2} {
		_, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
		require.NoError(t, err)
		f.clock.Step(time.Second)
		require.NoError(t, f.svc.HandleAck(ctx, "esp-01", ack(true, "")))
		f.clock.Step(time.Second)
	}

	res, err := f.svc.Rollback(ctx, "esp-01")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, res.FirmwareID)

	history, err = f.svc.DeploymentHistory(ctx, "esp-01", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Rollback)
	assert.Equal(t, model.DeploymentPending, history[0].Status)
	assert.Equal(t, model.DeploymentSuccess, history[1].Status)
	assert.Equal(t, model.DeploymentSuccess, history[2].Status)
}

func TestRequestResendsOpenDeployment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")

	_, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.NoError(t, err)

	f.announce(t, "esp-01")
	assert.Len(t, f.notifier.responses["esp-01"], 2)

	require.NoError(t, f.svc.HandleAck(ctx, "esp-01", ack(true, "")))
	f.announce(t, "esp-01")
	assert.Len(t, f.notifier.responses["esp-01"], 2)
}

func TestHandleStatusAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updating := "updating"
	require.NoError(t, f.svc.HandleStatus(ctx, "esp-01", &model.StatusMessage{IP: "10.0.0.9", Status: &updating}))
	require.NoError(t, f.svc.HandleStatus(ctx, "esp-02", &model.StatusMessage{}))

	st, err := f.svc.DeviceStatus("esp-01")
	require.NoError(t, err)
	assert.Equal(t, model.LivenessUpdating, st.State)
	assert.Equal(t, "10.0.0.9", st.Address)

	assert.Len(t, f.svc.ListDeviceStatuses(model.LivenessUpdating), 1)
	assert.Len(t, f.svc.ListDeviceStatuses(""), 2)

	f.clock.Step(2 * time.Minute)
	assert.Equal(t, 2, f.svc.SweepLiveness(time.Minute))
	assert.Zero(t, f.svc.SweepLiveness(time.Minute))
	assert.Equal(t, 2, f.svc.DeviceCounts()[model.LivenessOffline])

	_, err = f.svc.DeviceStatus("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSweepDeployments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announce(t, "esp-01")
	fw := f.firmware(t, "blink", "1.2")

	_, err := f.svc.Deploy(ctx, "esp-01", fw.ID)
	require.NoError(t, err)

	f.clock.Step(6 * time.Minute)
	n, err := f.svc.SweepDeployments(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.SweepDeployments(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Restart(ctx, "esp-01"))
	require.NoError(t, f.svc.RequestHeartbeat(ctx, "esp-01"))
	require.NoError(t, f.svc.SendCommand(ctx, "esp-01", "blink", map[string]any{"times": 3}))

	cmds := f.notifier.commands["esp-01"]
	require.Len(t, cmds, 3)
	assert.Equal(t, model.CommandRestart, cmds[0].Command)
	assert.NotNil(t, cmds[0].Params)
	assert.Empty(t, cmds[0].Params)
	assert.Equal(t, model.CommandHeartbeat, cmds[1].Command)
	assert.Equal(t, 3, cmds[2].Params["times"])
	assert.Equal(t, epoch.Unix(), cmds[2].Timestamp)

	f.notifier.failFor["esp-02"] = true
	assert.ErrorIs(t, f.svc.Restart(ctx, "esp-02"), errPublish)
	assert.ErrorIs(t, f.svc.SendCommand(ctx, "esp-02", "", nil), core.ErrInvalidArgument)
}

func TestUploadFirmware(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fw, err := f.svc.UploadFirmware(ctx, "blink", "1.2", bytes.NewReader([]byte("binary")), 6)
	require.NoError(t, err)

	key := fmt.Sprintf("firmware/blink_v1.2_%d.bin", epoch.UnixMilli())
	assert.Equal(t, key, fw.ArtifactKey)
	assert.Equal(t, []byte("binary"), f.storage.objects[key])

	got, err := f.svc.GetFirmware(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, fw, got)

	all, err := f.svc.ListFirmware(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.UploadFirmware(ctx, "", "1.2", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestDeviceLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, f.svc.HandleLog(ctx, "esp-01", &model.LogMessage{Level: "info", Message: fmt.Sprintf("line %d", i)}))
	}

	logs := f.svc.RecentLogs("esp-01", 3)
	require.Len(t, logs, 3)
	assert.Equal(t, "line 12", logs[0].Message)
	assert.Equal(t, "line 14", logs[2].Message)

	// The ring keeps the newest ten.
	assert.Len(t, f.svc.RecentLogs("esp-01", 0), 10)
	assert.Empty(t, f.svc.RecentLogs("esp-02", 0))

	require.NoError(t, f.svc.HandleLog(ctx, "esp-02", &model.LogMessage{Message: "boot"}))
	require.NoError(t, f.svc.HandleLog(ctx, "esp-02", &model.LogMessage{Level: "ERROR", Message: "wifi lost"}))
	logs = f.svc.RecentLogs("esp-02", 0)
	require.Len(t, logs, 2)
	assert.Equal(t, "info", logs[0].Level)
	assert.Equal(t, "error", logs[1].Level)
}
