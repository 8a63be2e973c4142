package hub

import (
	"context"
	"fmt"

	"github.com/roidota/roidota/internal/hub/core/deployment"
	"github.com/roidota/roidota/internal/hub/core/service"
	"github.com/roidota/roidota/internal/hub/server"
	"github.com/roidota/roidota/pkg/log"
)

// HubServer is the assembled RoidOTA hub.
type HubServer struct {
	service       *service.Service
	machine       *deployment.Machine
	serverManager *server.Manager
	closeRepo     func()
}

// Service exposes the core use cases to an embedding management layer.
func (s *HubServer) Service() *service.Service {
	return s.service
}

// Run restores deployment state and serves until ctx is done.
func (s *HubServer) Run(ctx context.Context) error {
	defer s.closeRepo()

	open, err := s.machine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover deployments: %w", err)
	}
	log.Info("Deployment state recovered", "open", open)

	if err := s.serverManager.Start(ctx); err != nil {
		return err
	}

	log.Info("roidota-hub stopped gracefully.")
	return nil
}
