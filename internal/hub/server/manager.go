package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roidota/roidota/pkg/log"
)

// Server is any component that runs until its context is done.
type Server interface {
	Start(ctx context.Context) error
}

// Manager runs the hub's long-lived components and stops them together.
type Manager struct {
	servers []Server
}

// NewManager creates a manager over servers.
func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel and waits for termination. The
// first server to fail cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
