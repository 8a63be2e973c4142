package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roidota/roidota/internal/hub/core/model"
	pkgmqtt "github.com/roidota/roidota/pkg/mqtt"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

type published struct {
	topic   string
	qos     int
	payload []byte
}

type fakeClient struct {
	pkgmqtt.Client

	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeClient) Publish(_ context.Context, t string, qos int, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: t, qos: qos, payload: payload})
	return nil
}

func TestSendCommand(t *testing.T) {
	client := &fakeClient{}
	n := NewMQTTNotifier(client, topic.NewBuilder(topic.DefaultRoot), 1)

	err := n.SendCommand(context.Background(), "esp-01", &model.CommandEnvelope{
		Command:   model.CommandRestart,
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "roidota/cmd/esp-01", client.sent[0].topic)
	assert.Equal(t, 1, client.sent[0].qos)
	assert.JSONEq(t, `{"command":"restart","params":{},"timestamp":1700000000}`, string(client.sent[0].payload))
}

func TestPublishFirmware(t *testing.T) {
	client := &fakeClient{}
	n := NewMQTTNotifier(client, topic.NewBuilder("fleet"), 1)

	err := n.PublishFirmware(context.Background(), "esp-01", &model.FirmwareResponse{
		FirmwareURL:     "http://minio:9000/firmware/app_v1.2.bin",
		CurrentFirmware: "app_v1.2",
		Timestamp:       1700000000,
		DeviceID:        "esp-01",
	})
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "fleet/response/esp-01", client.sent[0].topic)

	var got map[string]any
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.Equal(t, "app_v1.2", got["current_firmware"])
	assert.Equal(t, "esp-01", got["device_id"])
	assert.Contains(t, got, "firmware_url")
	assert.Contains(t, got, "timestamp")
}

func TestPublishFailureIsReturned(t *testing.T) {
	boom := errors.New("broker gone")
	n := NewMQTTNotifier(&fakeClient{err: boom}, topic.NewBuilder(topic.DefaultRoot), 1)

	err := n.SendCommand(context.Background(), "esp-01", &model.CommandEnvelope{Command: model.CommandHeartbeat})
	assert.ErrorIs(t, err, boom)
}
