package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/roidota/roidota/cmd/roidota-hub/app/options"
	"github.com/roidota/roidota/pkg/app"
)

const (
	commandName = "roidota-hub"
	commandDesc = `The RoidOTA hub tracks a fleet of microcontroller devices over MQTT,
serves firmware to them from object storage and follows every deployment
until the device acknowledges it or the deployment times out.`
)

func NewApp() *app.App {
	opts := options.NewHubOptions()
	application := app.NewApp(
		commandName,
		"Launch a RoidOTA hub server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.HubOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewHubServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create hub server: %w", err)
		}

		return server.Run(ctx)
	}
}
