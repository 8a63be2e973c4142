package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// errDecode marks payloads that are not valid JSON for the expected message.
var errDecode = errors.New("decode payload")

// HandlerFunc handles the raw payload received on a device topic. deviceID is
// empty for topics that carry no identifier in the path.
type HandlerFunc func(ctx context.Context, deviceID string, payload []byte) error

// TypedHandlerFunc handles a decoded and validated message.
type TypedHandlerFunc[T any, P interface {
	*T
	Validate() error
}] func(ctx context.Context, deviceID string, msg P) error

// JSONAdapter decodes the payload into a fresh T, validates it and passes it
// to handler. Unknown fields are ignored.
func JSONAdapter[T any, P interface {
	*T
	Validate() error
}](handler TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload []byte) error {
		var msg P = new(T)

		if err := json.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("%w: %w", errDecode, err)
		}
		if err := msg.Validate(); err != nil {
			return err
		}

		return handler(ctx, deviceID, msg)
	}
}
