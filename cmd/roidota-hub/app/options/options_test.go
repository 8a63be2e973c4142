package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHubOptionsValidate(t *testing.T) {
	o := NewHubOptions()
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())
}

func TestFlagsCoverEveryGroup(t *testing.T) {
	fss := NewHubOptions().Flags()
	for _, name := range []string{"http", "mqtt", "s3", "store", "ota", "log"} {
		assert.Contains(t, fss.Order, name)
	}
}

func TestParseFlagsIntoConfig(t *testing.T) {
	o := NewHubOptions()
	fss := o.Flags()
	fs := fss.FlagSet("mqtt")
	require.NoError(t, fs.Parse([]string{"--mqtt.broker=tcp://broker:1883", "--mqtt.topic-root=fleet"}))

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MqttOptions.Broker)
	assert.Equal(t, "fleet", cfg.MqttOptions.TopicRoot)
}

func TestCompleteClampsDeploymentInterval(t *testing.T) {
	o := NewHubOptions()
	o.OTAOptions.DeploymentTimeout = 30 * time.Second
	o.OTAOptions.DeploymentInterval = time.Minute

	require.NoError(t, o.Complete())
	assert.Equal(t, 30*time.Second, o.OTAOptions.DeploymentInterval)
}

func TestValidateAggregatesErrors(t *testing.T) {
	o := NewHubOptions()
	o.MqttOptions.Broker = ""
	o.StoreOptions.Driver = "sqlite"

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mqtt.broker")
	assert.Contains(t, err.Error(), "--store.driver")
}
