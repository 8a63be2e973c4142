package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())

	o.Level = "loud"
	o.Format = "xml"
	o.CallerSkip = -1
	assert.Len(t, o.Validate(), 3)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(&Options{Level: "loud", Format: "json"})
	assert.Error(t, err)

	l, err := NewLogger(&Options{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	l.WithName("test").Debug("built")
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	defer func() { _ = SetLevel(prev) }()

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", Level())

	assert.Error(t, SetLevel("verbose"))
	assert.Equal(t, "debug", Level())
}
