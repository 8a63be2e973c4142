package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns logr-style key/value pairs into zap fields. A zap.Field or a
// bare error may appear in place of a pair. A dangling value is kept under
// "arg#N" and a pair with a non-string key under "badkey#N", N being the
// argument position.
func toFields(args []any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			continue
		case error:
			fields = append(fields, zap.Error(v))
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, ok := args[i].(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("badkey#%d", i), []any{args[i], args[i+1]}))
			i++
			continue
		}
		fields = append(fields, field(key, args[i+1]))
		i++
	}
	return fields
}

// field maps a value to a typed zap field. zap.Any covers everything else,
// but stringers are rendered as text so ids and states stay readable.
func field(key string, val any) zap.Field {
	switch v := val.(type) {
	case error:
		return zap.NamedError(key, v)
	case []byte:
		return zap.ByteString(key, v)
	// Durations and times implement Stringer but have native encodings.
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
