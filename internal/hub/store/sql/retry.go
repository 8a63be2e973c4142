package sql

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roidota/roidota/pkg/log"
)

// PostgreSQL SQLSTATE codes for transient errors that should be retried.
const (
	sqlstateDeadlockDetected    = "40P01"
	sqlstateSerializationFailed = "40001"
	sqlstateStatementTimeout    = "57014"
)

const (
	maxRetryAttempts = 3
	baseBackoff      = 150 * time.Millisecond
	deadlockBackoff  = 500 * time.Millisecond
)

// classifyError returns the SQLSTATE of err and whether retrying may succeed.
func classifyError(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateDeadlockDetected, sqlstateSerializationFailed, sqlstateStatementTimeout:
			return pgErr.Code, true
		}
		return pgErr.Code, false
	}

	// Wrapped errors that lost their type.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "40p01"), strings.Contains(msg, "deadlock detected"):
		return sqlstateDeadlockDetected, true
	case strings.Contains(msg, "40001"), strings.Contains(msg, "could not serialize access"):
		return sqlstateSerializationFailed, true
	case strings.Contains(msg, "57014"), strings.Contains(msg, "statement timeout"):
		return sqlstateStatementTimeout, true
	default:
		return "", false
	}
}

// backoffDelay is exponential in attempt with up to one base of jitter.
func backoffDelay(attempt int, sqlstate string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := baseBackoff
	if sqlstate == sqlstateDeadlockDetected || sqlstate == sqlstateSerializationFailed {
		base = deadlockBackoff
	}

	backoff := base * time.Duration(1<<(attempt-1))
	jitter := time.Duration(time.Now().UnixNano() % int64(base))
	return backoff + jitter
}

// withRetry runs fn, retrying transient failures with backoff.
func withRetry(ctx context.Context, name string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		code, transient := classifyError(lastErr)
		if !transient || attempt == maxRetryAttempts {
			return lastErr
		}

		delay := backoffDelay(attempt, code)
		log.Warn("Transient database error, retrying", "op", name, "sqlstate", code,
			"attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
