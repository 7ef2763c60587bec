package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"strings"
	"time"
)

// IsTransient reports whether a store error is worth retrying: lost or
// refused connections, timeouts, serialization failures and a busy SQLite.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errs.IsTimeout(err) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01"
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "connection reset")
}

// WithRetry runs fn until it succeeds, fails permanently or runs out of
// attempts. Transient errors surviving the retries come back as
// *errs.StoreError; permanent ones are returned as they are.
func WithRetry(ctx context.Context, op string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	var err error
	_, _, _ = lo.AttemptWhileWithDelay(max(attempts, 1), delay, func(i int, _ time.Duration) (error, bool) {
		if i > 0 {
			log.Warnf("%s: retrying after transient store error: %v", op, err)
		}
		err = fn(ctx)
		return err, IsTransient(err) && ctx.Err() == nil
	})

	if IsTransient(err) {
		return &errs.StoreError{Op: op, Err: err}
	}
	return err
}
