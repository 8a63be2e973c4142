package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/mqtt/topic"
)

// ErrNotStarted is returned by operations invoked before Start.
var ErrNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg *ClientConfig
	cm  *autopaho.ConnectionManager

	connected atomic.Bool

	mu            sync.RWMutex
	subscriptions map[string]subscription // keyed by filter, as sent to the broker
	errorHandlers []ErrorHandler
}

type subscription struct {
	qos     byte
	match   string // filter without any $share prefix
	handler MessageHandler
}

// NewClient validates cfg and returns an unstarted client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return err
	}

	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectBackoff),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
		WillMessage:                   c.willMessage(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.onPublish},
		},
	})
	if err != nil {
		return fmt.Errorf("start connection to %s: %w", c.cfg.BrokerURL, err)
	}

	c.cm = cm
	log.Info("MQTT client started", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		log.Warn("MQTT disconnect was not clean", "error", err)
	}
	c.connected.Store(false)
	log.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, t string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PublishTimeout)
		defer cancel()
	}

	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   t,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", t, err)
	}
	return nil
}

func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	// Registered before the packet goes out so a reconnect picks it up even
	// if this attempt fails.
	c.mu.Lock()
	c.subscriptions[filter] = subscription{
		qos:     byte(qos),
		match:   topic.StripShare(filter),
		handler: handler,
	}
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}

	log.Info("Subscribed", "filter", filter, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.mu.Lock()
	delete(c.subscriptions, filter)
	c.mu.Unlock()

	if _, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}}); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", filter, err)
	}
	return nil
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) OnError(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandlers = append(c.errorHandlers, h)
}

func (c *pahoClient) notifyError(err error) {
	c.mu.RLock()
	handlers := c.errorHandlers
	c.mu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}

// subscribeOptions returns every registered filter as one SUBSCRIBE payload.
func (c *pahoClient) subscribeOptions() []paho.SubscribeOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := make([]paho.SubscribeOptions, 0, len(c.subscriptions))
	for filter, s := range c.subscriptions {
		opts = append(opts, paho.SubscribeOptions{Topic: filter, QoS: s.qos})
	}
	return opts
}

// matching returns the handlers whose filter matches t.
func (c *pahoClient) matching(t string) []MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var handlers []MessageHandler
	for _, s := range c.subscriptions {
		if topic.Match(s.match, t) {
			handlers = append(handlers, s.handler)
		}
	}
	return handlers
}

func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)

	opts := c.subscribeOptions()
	log.Info("MQTT connection established", "subscriptions", len(opts))
	if len(opts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		log.Error(err, "Failed to restore subscriptions")
		c.notifyError(err)
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT connection failed, retrying", "backoff", c.cfg.ReconnectBackoff)
	c.notifyError(err)
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT client error")
	c.notifyError(err)
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT broker closed the connection", "reason", reason, "code", d.ReasonCode)
}

// onPublish hands an inbound message to every matching handler, each on its
// own goroutine.
func (c *pahoClient) onPublish(p paho.PublishReceived) (bool, error) {
	t, payload := p.Packet.Topic, p.Packet.Payload

	handlers := c.matching(t)
	if len(handlers) == 0 {
		log.Debug("Message on unhandled topic", "topic", t)
		return true, nil
	}

	for _, h := range handlers {
		go dispatch(h, t, payload)
	}
	return true, nil
}

// dispatch runs h and contains a panic to the one message that caused it.
func dispatch(h MessageHandler, t string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "Message handler panicked", "topic", t, "bytes", len(payload))
		}
	}()
	h(context.Background(), t, payload)
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}
