package log

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the hub.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)

	// WithName returns a logger with name appended to its name.
	WithName(name string) Logger

	// WithValues returns a logger that adds keysAndValues to every entry.
	WithValues(keysAndValues ...any) Logger

	// Logr returns a logr.Logger view of the same sink.
	Logr() logr.Logger

	// Sync flushes buffered entries.
	Sync() error
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	core *zap.Logger
}

var (
	mu sync.RWMutex

	// std serves callers holding a Logger; pkg serves the package-level
	// helpers, which sit one frame further from the caller.
	std = &zapLogger{core: zap.NewNop()}
	pkg = std

	// level is shared by every logger built through Init so SetLevel can
	// change verbosity without a restart.
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// NewLogger builds a standalone logger from opts.
func NewLogger(opts *Options) (Logger, error) {
	if opts == nil {
		opts = NewOptions()
	}
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	core, err := build(opts, zap.NewAtomicLevelAt(lvl))
	if err != nil {
		return nil, err
	}
	return &zapLogger{core: core}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{core: zap.NewNop()}
}

// Init replaces the global logger with one built from opts.
func Init(opts *Options) error {
	if opts == nil {
		opts = NewOptions()
	}
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	core, err := build(opts, level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	std = &zapLogger{core: core}
	pkg = &zapLogger{core: core.WithOptions(zap.AddCallerSkip(1))}
	return nil
}

// SetLevel changes the level of the global logger.
func SetLevel(text string) error {
	lvl, err := parseLevel(text)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current level of the global logger.
func Level() string {
	return level.Level().String()
}

// Std returns the global logger.
func Std() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

func global() *zapLogger {
	mu.RLock()
	defer mu.RUnlock()
	return pkg
}

func parseLevel(text string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(text)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", text, err)
	}
	return lvl, nil
}

func build(opts *Options, lvl zap.AtomicLevel) (*zap.Logger, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.Format == "console" && opts.EnableColor {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	cfg := zap.Config{
		Level:             lvl,
		Encoding:          opts.Format,
		EncoderConfig:     enc,
		DisableCaller:     opts.DisableCaller,
		DisableStacktrace: true,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	if opts.Sampling {
		// Devices can flood the hub with log lines; keep the first 100 of each
		// message per second, then every 100th.
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	core, err := cfg.Build(zap.AddCallerSkip(opts.CallerSkip))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if opts.Name != "" {
		core = core.Named(opts.Name)
	}
	return core, nil
}

func Debug(msg string, keysAndValues ...any)            { global().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)             { global().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)             { global().Warn(msg, keysAndValues...) }
func Error(err error, msg string, keysAndValues ...any) { global().Error(err, msg, keysAndValues...) }
func WithName(name string) Logger                       { return Std().WithName(name) }
func WithValues(keysAndValues ...any) Logger            { return Std().WithValues(keysAndValues...) }
func Logr() logr.Logger                                 { return Std().Logr() }
func Sync() error                                       { return Std().Sync() }

func (z *zapLogger) Debug(msg string, keysAndValues ...any) {
	z.core.Debug(msg, toFields(keysAndValues)...)
}

func (z *zapLogger) Info(msg string, keysAndValues ...any) {
	z.core.Info(msg, toFields(keysAndValues)...)
}

func (z *zapLogger) Warn(msg string, keysAndValues ...any) {
	z.core.Warn(msg, toFields(keysAndValues)...)
}

func (z *zapLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	z.core.Error(msg, fields...)
}

func (z *zapLogger) WithName(name string) Logger {
	return &zapLogger{core: z.core.Named(name)}
}

func (z *zapLogger) WithValues(keysAndValues ...any) Logger {
	return &zapLogger{core: z.core.With(toFields(keysAndValues)...)}
}

func (z *zapLogger) Logr() logr.Logger {
	return zapr.NewLogger(z.core)
}

func (z *zapLogger) Sync() error {
	return z.core.Sync()
}
