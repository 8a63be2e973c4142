package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to looplab's signature. A
// returned error is stored on the event and reported by Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsRefused reports whether err only means the event did not apply to the
// current state.
func IsRefused(err error) bool {
	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError
	var invalid fsm.InvalidEventError

	return errors.As(err, &noTransition) || errors.As(err, &canceled) || errors.As(err, &invalid)
}

// MessageArg returns the first event argument as text, or fallback when there
// is none.
func MessageArg(e *fsm.Event, fallback string) string {
	if len(e.Args) == 0 {
		return fallback
	}
	switch v := e.Args[0].(type) {
	case string:
		if v != "" {
			return v
		}
	case error:
		if v != nil {
			return v.Error()
		}
	}
	return fallback
}
