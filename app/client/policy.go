package client

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

// RetryPolicy bounds acquisition retries after a conflict or a failed request.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy allows three attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Next reports whether another attempt should follow the given failed one
// (1-based) and how long to wait first.
func (p RetryPolicy) Next(attempt int, err error) (time.Duration, bool) {
	if err == nil || !retryable(err) {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay, true
}

// retryable reports whether err may clear on its own. Conflicts and transport
// failures can; answers about the record, the caller or the target cannot.
func retryable(err error) bool {
	if errors.Is(err, lock.ErrConflict) || errors.Is(err, ErrTransport) {
		return true
	}
	var invalid *transition.InvalidTransitionError
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, lock.ErrLockNotFound),
		errors.Is(err, lock.ErrForbidden),
		errors.Is(err, lock.ErrStaleVersion),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTargetUnsupported),
		errors.As(err, &invalid):
		return false
	}
	return true
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry max attempts must be at least 1")
	}
	if p.Delay < 0 {
		return errors.New("retry delay cannot be negative")
	}
	return nil
}
