package sweeper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/options"
)

// Target is the state the sweeper maintains.
type Target interface {
	SweepLiveness(threshold time.Duration) int
	SweepDeployments(ctx context.Context, timeout time.Duration) (int, error)
	DeviceCounts() map[model.Liveness]int
}

// Sweeper periodically expires silent devices and stale deployments.
type Sweeper struct {
	target Target
	clock  clock.WithTicker
	opts   *options.OTAOptions
}

func New(target Target, clk clock.WithTicker, opts *options.OTAOptions) *Sweeper {
	return &Sweeper{target: target, clock: clk, opts: opts}
}

// Start runs both sweeps until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	log.Info("Sweeper started",
		"livenessInterval", s.opts.LivenessInterval, "livenessThreshold", s.opts.LivenessThreshold,
		"deploymentInterval", s.opts.DeploymentInterval, "deploymentTimeout", s.opts.DeploymentTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.every(ctx, s.opts.LivenessInterval, s.sweepLiveness)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.opts.DeploymentInterval, s.sweepDeployments)
		return nil
	})
	return g.Wait()
}

func (s *Sweeper) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			fn(ctx)
		}
	}
}

func (s *Sweeper) sweepLiveness(_ context.Context) {
	if n := s.target.SweepLiveness(s.opts.LivenessThreshold); n > 0 {
		log.Info("Devices marked offline", "count", n)
	}

	for state, n := range s.target.DeviceCounts() {
		metrics.Devices.WithLabelValues(string(state)).Set(float64(n))
	}
}

func (s *Sweeper) sweepDeployments(ctx context.Context) {
	n, err := s.target.SweepDeployments(ctx, s.opts.DeploymentTimeout)
	if err != nil {
		log.Error(err, "Deployment timeout sweep incomplete", "timedOut", n)
		return
	}
	if n > 0 {
		log.Info("Deployments timed out", "count", n)
	}
}
