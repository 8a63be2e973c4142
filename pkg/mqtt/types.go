package mqtt

import (
	"context"
)

// MessageHandler processes one inbound message. It runs on its own goroutine.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// ErrorHandler is notified of connection and client errors.
type ErrorHandler func(err error)

// Client is a blocking-call facade over an auto-reconnecting MQTT v5
// connection. Suspension points are the connect handshake and the wait for
// a publish acknowledgement.
type Client interface {
	// Start begins connecting in the background and returns at once.
	Start(ctx context.Context) error

	// AwaitConnection blocks until the first connection is up or ctx ends.
	AwaitConnection(ctx context.Context) error

	// Subscribe registers handler for filter, which may carry a $share
	// prefix. Registrations survive reconnects.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, filter string) error

	// Publish blocks until the broker acknowledges a QoS>0 message. Without
	// a deadline on ctx the configured publish timeout applies.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	IsConnected() bool

	// OnError registers a callback for connection and client errors.
	OnError(h ErrorHandler)

	Disconnect(ctx context.Context)
}
