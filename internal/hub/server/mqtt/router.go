package mqtt

import (
	"context"
	"errors"

	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

// Handler receives decoded inbound messages.
type Handler interface {
	HandleRequest(ctx context.Context, msg *model.RequestMessage) error
	HandleStatus(ctx context.Context, deviceID string, msg *model.StatusMessage) error
	HandleLog(ctx context.Context, deviceID string, msg *model.LogMessage) error
	HandleAck(ctx context.Context, deviceID string, msg *model.AckMessage) error
}

// Router classifies inbound topics and dispatches payloads to the handler.
// Bad input is logged, counted and dropped; it never reaches the caller.
type Router struct {
	topics *topic.Builder
	routes map[topic.Kind]HandlerFunc
}

// NewRouter creates a router for the inbound channels under topics.
func NewRouter(topics *topic.Builder, h Handler) *Router {
	return &Router{
		topics: topics,
		routes: map[topic.Kind]HandlerFunc{
			topic.KindRequest: JSONAdapter(func(ctx context.Context, _ string, msg *model.RequestMessage) error {
				return h.HandleRequest(ctx, msg)
			}),
			topic.KindStatus: JSONAdapter(h.HandleStatus),
			topic.KindLogs:   JSONAdapter(h.HandleLog),
			topic.KindAck:    JSONAdapter(h.HandleAck),
		},
	}
}

// Filters returns the subscription filter of every inbound channel.
func (r *Router) Filters() []string {
	return []string{
		r.topics.Request(),
		r.topics.StatusWildcard(),
		r.topics.LogsWildcard(),
		r.topics.AckWildcard(),
	}
}

// Route handles one inbound message.
func (r *Router) Route(ctx context.Context, t string, payload []byte) {
	kind, deviceID, err := r.topics.Parse(t)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(string(kind), "unknown_topic").Inc()
		log.Debug("Dropping message on unknown topic", "topic", t)
		return
	}

	handler, ok := r.routes[kind]
	if !ok {
		metrics.MessagesDropped.WithLabelValues(string(kind), "unknown_topic").Inc()
		log.Debug("Dropping message on outbound-only topic", "topic", t)
		return
	}
	metrics.MessagesReceived.WithLabelValues(string(kind)).Inc()

	ctx = log.IntoContext(ctx, "topic", t)
	if err := handler(ctx, deviceID, payload); err != nil {
		reason := "handler"
		switch {
		case errors.Is(err, errDecode):
			reason = "decode"
		case errors.Is(err, model.ErrInvalidMessage):
			reason = "invalid"
		}
		metrics.MessagesDropped.WithLabelValues(string(kind), reason).Inc()

		logger := log.FromContext(ctx)
		if reason == "handler" {
			logger.Error(err, "Handler execution failed")
		} else {
			logger.Warn("Dropping malformed message", "reason", reason, "error", err.Error())
		}
	}
}
