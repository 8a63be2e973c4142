package hub

import (
	"context"

	"k8s.io/utils/clock"

	"github.com/roidota/roidota/internal/hub/core/deployment"
	"github.com/roidota/roidota/internal/hub/core/service"
	"github.com/roidota/roidota/internal/hub/core/tracker"
	"github.com/roidota/roidota/internal/hub/notifier"
	"github.com/roidota/roidota/internal/hub/server"
	httpserver "github.com/roidota/roidota/internal/hub/server/http"
	mqttserver "github.com/roidota/roidota/internal/hub/server/mqtt"
	"github.com/roidota/roidota/internal/hub/store"
	"github.com/roidota/roidota/internal/hub/sweeper"
	"github.com/roidota/roidota/pkg/mqtt/topic"
	"github.com/roidota/roidota/pkg/options"
)

// Config is the complete hub configuration.
type Config struct {
	HttpOptions  *options.HttpOptions
	MqttOptions  *options.MqttOptions
	S3Options    *options.S3Options
	StoreOptions *options.StoreOptions
	OTAOptions   *options.OTAOptions
}

// NewHubServer builds every adapter, the core service and the servers
// around it. Nothing is started yet.
func (cfg *Config) NewHubServer(ctx context.Context) (*HubServer, error) {
	clk := clock.RealClock{}

	repo, closeRepo, err := InitializeRepository(ctx, cfg.StoreOptions)
	if err != nil {
		return nil, err
	}

	storageProvider, err := InitializeStorage(ctx, cfg.S3Options)
	if err != nil {
		closeRepo()
		return nil, err
	}

	mqttClient, err := InitializeMQTTClient(cfg.MqttOptions)
	if err != nil {
		closeRepo()
		return nil, err
	}
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	pipeline := store.NewContactPipeline(repo.Device(), cfg.StoreOptions.FlushInterval)
	machine := deployment.NewMachine(repo.Deployment(), clk)

	svc := service.New(
		repo,
		tracker.New(repo.Device(), pipeline),
		machine,
		tracker.NewLogBuffer(cfg.OTAOptions.LogBufferSize),
		notifier.NewMQTTNotifier(mqttClient, topics, cfg.MqttOptions.QoS),
		storageProvider,
		clk,
		service.Options{
			URLExpiry:        cfg.S3Options.URLExpiry,
			BatchConcurrency: cfg.OTAOptions.BatchConcurrency,
		},
	)

	mqttSrv := mqttserver.NewServer(mqttClient, mqttserver.NewRouter(topics, svc), cfg.MqttOptions.QoS, cfg.MqttOptions.SharedGroup)

	manager := server.NewManager(
		mqttSrv,
		httpserver.NewServer(cfg.HttpOptions, mqttSrv.Ready),
		sweeper.New(svc, clk, cfg.OTAOptions),
		pipeline,
	)

	return &HubServer{
		service:       svc,
		machine:       machine,
		serverManager: manager,
		closeRepo:     closeRepo,
	}, nil
}
