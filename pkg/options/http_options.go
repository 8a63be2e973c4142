package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the ops endpoint serving health, readiness and
// metrics.
type HttpOptions struct {
	Network string `json:"network" mapstructure:"network"`
	Addr    string `json:"addr" mapstructure:"addr"`

	// Timeout bounds reading request headers and writing a response.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// ShutdownTimeout is how long in-flight scrapes get on shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// EnableProfiling mounts the pprof handlers under /debug/pprof/.
	EnableProfiling bool `json:"enable-profiling" mapstructure:"enable-profiling"`
}

func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:         "tcp",
		Addr:            "0.0.0.0:8080",
		Timeout:         30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		errs = append(errs, fmt.Errorf("--http.network must be tcp, tcp4, tcp6 or unix, got %q", o.Network))
	}
	if o.Network != "unix" {
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, fmt.Errorf("--http.addr: %w", err))
		}
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--http.shutdown-timeout must be positive"))
	}
	return errs
}

func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Listener network of the ops endpoint.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the ops endpoint (health, readiness, metrics).")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Read-header and write timeout of the ops endpoint.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
	fs.BoolVar(&o.EnableProfiling, "http.enable-profiling", o.EnableProfiling, "Serve pprof profiles under /debug/pprof/.")
}
