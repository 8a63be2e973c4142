package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
)

func TestWrapEventReportsError(t *testing.T) {
	boom := errors.New("boom")
	m := fsm.NewFSM("idle",
		fsm.Events{{Name: "go", Src: []string{"idle"}, Dst: "busy"}},
		fsm.Callbacks{
			"enter_busy": WrapEvent(func(context.Context, *fsm.Event) error { return boom }),
		},
	)

	err := m.Event(context.Background(), "go")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "busy", m.Current())
}

func TestIsRefused(t *testing.T) {
	m := fsm.NewFSM("done", fsm.Events{{Name: "go", Src: []string{"idle"}, Dst: "busy"}}, nil)

	err := m.Event(context.Background(), "go")
	assert.True(t, IsRefused(err))

	err = m.Event(context.Background(), "unknown")
	assert.False(t, IsRefused(err))

	assert.False(t, IsRefused(errors.New("disk full")))
}

func TestMessageArg(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"none", nil, "default"},
		{"text", []any{"flash write failed"}, "flash write failed"},
		{"empty text", []any{""}, "default"},
		{"error", []any{errors.New("checksum mismatch")}, "checksum mismatch"},
		{"other", []any{42}, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageArg(&fsm.Event{Args: tt.args}, "default"))
		})
	}
}
