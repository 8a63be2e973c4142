package hub

import (
	"context"
	"fmt"
	"os"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/storage"
	"github.com/roidota/roidota/internal/hub/store/memory"
	sqlstore "github.com/roidota/roidota/internal/hub/store/sql"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/mqtt"
	"github.com/roidota/roidota/pkg/options"
)

// InitializeRepository opens the configured repository. The returned func
// releases it.
func InitializeRepository(ctx context.Context, opts *options.StoreOptions) (core.Repository, func(), error) {
	switch opts.Driver {
	case options.StoreDriverPostgres:
		repo, err := sqlstore.Open(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres repository: %w", err)
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				log.Error(err, "Failed to close database")
			}
		}, nil

	default:
		log.Warn("Using the in-memory repository, state is lost on restart")
		return memory.NewRepository(), func() {}, nil
	}
}

func InitializeStorage(ctx context.Context, opts *options.S3Options) (*storage.MinIOProvider, error) {
	provider, err := storage.NewMinIOProvider(opts)
	if err != nil {
		return nil, err
	}
	if err := provider.CheckBucket(ctx); err != nil {
		// The hub can still track devices; uploads and presigning retry on use.
		log.Error(err, "Firmware bucket unavailable", "bucket", opts.BucketName)
	}
	return provider, nil
}

func InitializeMQTTClient(opts *options.MqttOptions) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("roidota-hub-%s", hostname)
	}

	mqttclient, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to new mqtt client")
		return nil, err
	}

	return mqttclient, nil
}
