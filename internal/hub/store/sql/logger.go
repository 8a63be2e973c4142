package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/roidota/roidota/pkg/log"
)

// gormLogger routes gorm's output through the hub logger.
type gormLogger struct {
	slowThreshold time.Duration
}

func newLogger(slowThreshold time.Duration) logger.Interface {
	return &gormLogger{slowThreshold: slowThreshold}
}

func (l *gormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	log.Info(fmt.Sprintf(msg, args...), "component", "gorm")
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	log.Warn(fmt.Sprintf(msg, args...), "component", "gorm")
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	log.Error(nil, fmt.Sprintf(msg, args...), "component", "gorm")
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.Error(err, "Query failed", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		sql, rows := fc()
		log.Warn("Slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
