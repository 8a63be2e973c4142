package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
	pkgmqtt "github.com/roidota/roidota/pkg/mqtt"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

const (
	channelCommand  = "command"
	channelResponse = "response"
)

var _ core.DeviceNotifier = (*MQTTNotifier)(nil)

// MQTTNotifier publishes outbound envelopes on the device's command and
// response topics. It shares the bus client with the inbound router.
type MQTTNotifier struct {
	client pkgmqtt.Client
	topics *topic.Builder
	qos    int
}

// NewMQTTNotifier creates a notifier publishing through client at the given QoS.
func NewMQTTNotifier(client pkgmqtt.Client, topics *topic.Builder, qos int) *MQTTNotifier {
	return &MQTTNotifier{client: client, topics: topics, qos: qos}
}

func (n *MQTTNotifier) SendCommand(ctx context.Context, deviceID string, cmd *model.CommandEnvelope) error {
	if cmd.Params == nil {
		cmd.Params = map[string]any{}
	}
	return n.publish(ctx, channelCommand, n.topics.Command(deviceID), cmd)
}

func (n *MQTTNotifier) PublishFirmware(ctx context.Context, deviceID string, resp *model.FirmwareResponse) error {
	return n.publish(ctx, channelResponse, n.topics.Response(deviceID), resp)
}

func (n *MQTTNotifier) publish(ctx context.Context, channel, t string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}

	start := time.Now()
	if err := n.client.Publish(ctx, t, n.qos, false, payload); err != nil {
		metrics.PublishTotal.WithLabelValues(channel, "failed").Inc()
		log.Error(err, "Failed to publish", "topic", t)
		return fmt.Errorf("publish to %s: %w", t, err)
	}

	metrics.PublishTotal.WithLabelValues(channel, "success").Inc()
	metrics.PublishLatency.WithLabelValues(channel).Observe(time.Since(start).Seconds())
	log.Debug("Published", "topic", t, "bytes", len(payload))
	return nil
}
