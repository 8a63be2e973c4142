package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OTAOptions)(nil)

// OTAOptions tunes device liveness and deployment lifecycle handling.
type OTAOptions struct {
	// LivenessInterval is how often devices are checked for expiry.
	LivenessInterval time.Duration `json:"liveness-interval" mapstructure:"liveness-interval"`

	// LivenessThreshold is the silence after which a device is considered offline.
	LivenessThreshold time.Duration `json:"liveness-threshold" mapstructure:"liveness-threshold"`

	// DeploymentInterval is how often open deployments are checked for timeout.
	DeploymentInterval time.Duration `json:"deployment-interval" mapstructure:"deployment-interval"`

	// DeploymentTimeout is how long a deployment may stay open without an acknowledgement.
	DeploymentTimeout time.Duration `json:"deployment-timeout" mapstructure:"deployment-timeout"`

	// BatchConcurrency caps parallel dispatches in a batch deployment.
	BatchConcurrency int `json:"batch-concurrency" mapstructure:"batch-concurrency"`

	// LogBufferSize is the number of device log lines retained per device.
	LogBufferSize int `json:"log-buffer-size" mapstructure:"log-buffer-size"`
}

func NewOTAOptions() *OTAOptions {
	return &OTAOptions{
		LivenessInterval:   30 * time.Second,
		LivenessThreshold:  60 * time.Second,
		DeploymentInterval: 60 * time.Second,
		DeploymentTimeout:  5 * time.Minute,
		BatchConcurrency:   16,
		LogBufferSize:      1000,
	}
}

func (o *OTAOptions) Validate() []error {
	var errs []error

	for name, d := range map[string]time.Duration{
		"--ota.liveness-interval":   o.LivenessInterval,
		"--ota.liveness-threshold":  o.LivenessThreshold,
		"--ota.deployment-interval": o.DeploymentInterval,
		"--ota.deployment-timeout":  o.DeploymentTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if o.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("--ota.batch-concurrency must be at least 1"))
	}
	if o.LogBufferSize < 1 {
		errs = append(errs, fmt.Errorf("--ota.log-buffer-size must be at least 1"))
	}

	return errs
}

func (o *OTAOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.LivenessInterval, "ota.liveness-interval", o.LivenessInterval, "How often device liveness is swept.")
	fs.DurationVar(&o.LivenessThreshold, "ota.liveness-threshold", o.LivenessThreshold, "Silence after which a device is marked offline.")
	fs.DurationVar(&o.DeploymentInterval, "ota.deployment-interval", o.DeploymentInterval, "How often open deployments are checked for timeout.")
	fs.DurationVar(&o.DeploymentTimeout, "ota.deployment-timeout", o.DeploymentTimeout, "How long a deployment may wait for an acknowledgement.")
	fs.IntVar(&o.BatchConcurrency, "ota.batch-concurrency", o.BatchConcurrency, "Maximum parallel dispatches in a batch deployment.")
	fs.IntVar(&o.LogBufferSize, "ota.log-buffer-size", o.LogBufferSize, "Device log lines retained per device.")
}
