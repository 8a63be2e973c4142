package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	for _, ok := range []string{"0.0.0.0:8080", ":8080", "localhost:1883", "[::1]:9000"} {
		assert.NoError(t, ValidateAddress(ok), ok)
	}
	for _, bad := range []string{"8080", "host:port", "host:70000", "bad_host:80"} {
		assert.Error(t, ValidateAddress(bad), bad)
	}
}

func TestDefaultsValidate(t *testing.T) {
	for _, o := range []IOptions{
		NewMqttOptions(),
		NewHttpOptions(),
		NewS3Options(),
		NewStoreOptions(),
		NewOTAOptions(),
	} {
		assert.Empty(t, o.Validate(), "%T", o)
	}
}

func TestStoreOptionsRequireDSNForPostgres(t *testing.T) {
	o := NewStoreOptions()
	o.Driver = StoreDriverPostgres
	assert.Len(t, o.Validate(), 1)

	o.DSN = "postgres://localhost/roidota"
	assert.Empty(t, o.Validate())

	o.Driver = "sqlite"
	assert.Len(t, o.Validate(), 1)
}

func TestOTAOptionsFlags(t *testing.T) {
	o := NewOTAOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--ota.deployment-timeout=2m", "--ota.liveness-threshold=90s"}))
	assert.Equal(t, 2*time.Minute, o.DeploymentTimeout)
	assert.Equal(t, 90*time.Second, o.LivenessThreshold)

	o.BatchConcurrency = 0
	o.LivenessInterval = 0
	assert.Len(t, o.Validate(), 2)
}

func TestMqttOptionsToClientConfig(t *testing.T) {
	o := NewMqttOptions()
	o.ClientID = "hub-1"
	cfg := o.ToClientConfig()

	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
	assert.Equal(t, "hub-1", cfg.ClientID)
	assert.EqualValues(t, 60, cfg.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)

	o.QoS = 3
	assert.Len(t, o.Validate(), 1)
}

func TestHttpOptionsValidate(t *testing.T) {
	o := NewHttpOptions()
	o.Network = "udp"
	o.Addr = "nope"
	o.ShutdownTimeout = 0
	assert.Len(t, o.Validate(), 3)

	o = NewHttpOptions()
	o.Network = "unix"
	o.Addr = "/run/roidota-hub.sock"
	assert.Empty(t, o.Validate())
}
