package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roidota/roidota/internal/hub/store/memory"
	"github.com/roidota/roidota/pkg/options"
)

func TestInitializeRepositoryMemory(t *testing.T) {
	repo, closeRepo, err := InitializeRepository(context.Background(), options.NewStoreOptions())
	require.NoError(t, err)
	defer closeRepo()

	assert.IsType(t, &memory.Repository{}, repo)
}

func TestInitializeRepositoryPostgresBadDSN(t *testing.T) {
	opts := options.NewStoreOptions()
	opts.Driver = options.StoreDriverPostgres
	opts.DSN = "postgres://%zz"

	_, _, err := InitializeRepository(context.Background(), opts)
	assert.Error(t, err)
}

func TestInitializeMQTTClient(t *testing.T) {
	client, err := InitializeMQTTClient(options.NewMqttOptions())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.False(t, client.IsConnected())

	bad := options.NewMqttOptions()
	bad.Broker = "://"
	_, err = InitializeMQTTClient(bad)
	assert.Error(t, err)
}
