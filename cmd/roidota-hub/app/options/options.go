package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/roidota/roidota/internal/hub"
	"github.com/roidota/roidota/pkg/app"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/options"
)

type HubOptions struct {
	HttpOptions  *options.HttpOptions  `json:"http" mapstructure:"http"`
	MqttOptions  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	S3Options    *options.S3Options    `json:"s3" mapstructure:"s3"`
	StoreOptions *options.StoreOptions `json:"store" mapstructure:"store"`
	OTAOptions   *options.OTAOptions   `json:"ota" mapstructure:"ota"`
	Log          *log.Options          `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*HubOptions)(nil)

func NewHubOptions() *HubOptions {
	return &HubOptions{
		HttpOptions:  options.NewHttpOptions(),
		MqttOptions:  options.NewMqttOptions(),
		S3Options:    options.NewS3Options(),
		StoreOptions: options.NewStoreOptions(),
		OTAOptions:   options.NewOTAOptions(),
		Log:          log.NewOptions(),
	}
}

func (o *HubOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.OTAOptions.AddFlags(fss.FlagSet("ota"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *HubOptions) Complete() error {
	// A deployment sweep slower than the timeout would let records overstay it.
	if o.OTAOptions.DeploymentInterval > o.OTAOptions.DeploymentTimeout {
		o.OTAOptions.DeploymentInterval = o.OTAOptions.DeploymentTimeout
	}
	return nil
}

func (o *HubOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.OTAOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// LogOptions returns the logger configuration applied before the hub starts.
func (o *HubOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *HubOptions) Config() (*hub.Config, error) {
	return &hub.Config{
		HttpOptions:  o.HttpOptions,
		MqttOptions:  o.MqttOptions,
		S3Options:    o.S3Options,
		StoreOptions: o.StoreOptions,
		OTAOptions:   o.OTAOptions,
	}, nil
}
