package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	"tuweeter/internal/model"
	"tuweeter/internal/repository"
)

const DefaultStoreTimeout = 5 * time.Second

// storeTimeout bounds store calls. Reads follow the caller's cancellation;
// writes are detached from it so a disconnecting client does not abort a
// mutation halfway, but they still carry the deadline.
type storeTimeout time.Duration

func (d storeTimeout) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.duration())
}

func (d storeTimeout) write(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.duration())
}

func (d storeTimeout) duration() time.Duration {
	if d <= 0 {
		return DefaultStoreTimeout
	}
	return time.Duration(d)
}

// storeErr marks timeouts and connection failures as model.ErrStoreUnavailable
// and passes every other error through untouched.
func storeErr(err error) error {
	if err == nil || !isUnavailable(err) {
		return err
	}
	metrics.StoreUnavailable.Inc()
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return repository.IsTransient(err)
}

// readAfterCommit logs a read that failed once its mutation had committed.
// Callers then answer with what they already know instead of an error.
func readAfterCommit(ctx context.Context, op string, err error) {
	logging.Ctx(ctx).Warn().Err(storeErr(err)).Str("op", op).Msg("read after committed mutation failed")
}
