package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgmqtt "github.com/roidota/roidota/pkg/mqtt"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

// stubClient never connects unless connected is set; AwaitConnection then
// blocks until ctx ends.
type stubClient struct {
	pkgmqtt.Client

	connected  bool
	connectErr error

	mu           sync.Mutex
	subscribed   []string
	disconnected bool
}

func (c *stubClient) OnError(pkgmqtt.ErrorHandler) {}

func (c *stubClient) Start(context.Context) error { return nil }

func (c *stubClient) AwaitConnection(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	if c.connected {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *stubClient) Subscribe(_ context.Context, filter string, _ int, _ pkgmqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, filter)
	return nil
}

func (c *stubClient) IsConnected() bool { return c.connected }

func (c *stubClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestServerStart(t *testing.T) {
	tests := []struct {
		name    string
		client  *stubClient
		wantErr bool
		subs    int
	}{
		{name: "cancelled before connect", client: &stubClient{}},
		{name: "connected then cancelled", client: &stubClient{connected: true}, subs: 4},
		{name: "connect fails", client: &stubClient{connectErr: errors.New("bad credentials")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(topic.NewBuilder(topic.DefaultRoot), newRecordingHandler())
			srv := NewServer(tt.client, router, 1, "")

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Start(ctx) }()

			time.Sleep(20 * time.Millisecond)
			cancel()

			select {
			case err := <-done:
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(time.Second):
				require.FailNow(t, "Start did not return after cancel")
			}

			tt.client.mu.Lock()
			defer tt.client.mu.Unlock()
			assert.True(t, tt.client.disconnected)
			assert.Len(t, tt.client.subscribed, tt.subs)
		})
	}
}
