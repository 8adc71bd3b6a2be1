// Package store persists documents. Every state change is a single
// conditional write, so concurrent callers and concurrent dispatchers can
// never both win the same transition.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"approvals/pkg/platform/sentinel"
)

// Re-exported so callers can match store errors without importing sentinel.
var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrInvalidState = sentinel.ErrInvalidState
	ErrConflict     = sentinel.ErrConflict
	ErrUnavailable  = sentinel.ErrUnavailable
)

// unavailable marks connection-level failures so callers can tell an
// outage apart from a bad query.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
