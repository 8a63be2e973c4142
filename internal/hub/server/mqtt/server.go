package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
	pkgmqtt "github.com/roidota/roidota/pkg/mqtt"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

const (
	disconnectGrace = 5 * time.Second

	// connectionProbe is how often the broker-connected gauge is refreshed.
	connectionProbe = 5 * time.Second
)

// Server implements the MQTT ingress layer.
type Server struct {
	client pkgmqtt.Client
	router *Router

	qos         int
	sharedGroup string
}

// NewServer creates the ingress server. With a non-empty sharedGroup the
// subscriptions are shared so several hub replicas split the traffic.
func NewServer(client pkgmqtt.Client, router *Router, qos int, sharedGroup string) *Server {
	return &Server{
		client:      client,
		router:      router,
		qos:         qos,
		sharedGroup: sharedGroup,
	}
}

// Start connects to the broker, subscribes to the inbound topics and blocks
// until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.client.OnError(func(error) {
		metrics.BrokerErrors.Inc()
		metrics.BrokerConnected.Set(0)
	})

	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
		metrics.BrokerConnected.Set(0)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		// Shutdown before the broker came up is not a failure.
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	metrics.BrokerConnected.Set(1)
	log.Info("MQTT Connected")

	if err := s.subscribe(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(connectionProbe)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.client.IsConnected() {
				metrics.BrokerConnected.Set(1)
			} else {
				metrics.BrokerConnected.Set(0)
			}
		}
	}
}

// Ready reports whether the broker connection is up.
func (s *Server) Ready() bool {
	return s.client.IsConnected()
}

func (s *Server) subscribe(ctx context.Context) error {
	for _, filter := range s.router.Filters() {
		full := topic.Shared(s.sharedGroup, filter)
		if err := s.client.Subscribe(ctx, full, s.qos, s.router.Route); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", full, err)
		}
	}
	return nil
}
