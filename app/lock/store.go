package lock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

// DefaultLease is the fixed lifetime of a lock that is not renewed.
const DefaultLease = 5 * time.Minute

// Store is the authoritative table of record locks.
type Store interface {
	// Acquire grants the lock or returns a *ConflictError naming the current holder.
	// Acquiring a lock the holder already owns refreshes its lease.
	Acquire(ctx context.Context, recordID string, lockType entity.LockType, holderID string) (entity.Lock, error)
	// Renew extends a lock owned by holderID. A non-zero version must match the current one.
	Renew(ctx context.Context, recordID string, lockType entity.LockType, holderID string, version uint64) (entity.Lock, error)
	// Release drops a lock owned by holderID and reports whether anything was removed.
	Release(ctx context.Context, recordID string, lockType entity.LockType, holderID string) (bool, error)
	// Status reports the live locks on a record; an empty lockType matches every purpose.
	Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error)
	// Sweep removes expired entries and returns them.
	Sweep(ctx context.Context) ([]entity.Lock, error)
}

type options struct {
	lease  time.Duration
	now    func() time.Time
	logger logrus.FieldLogger
}

// Option configures a Store implementation.
type Option func(*options)

// WithLease overrides DefaultLease. Non-positive values are ignored.
func WithLease(lease time.Duration) Option {
	return func(o *options) {
		if lease > 0 {
			o.lease = lease
		}
	}
}

// WithClock sets the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		lease:  DefaultLease,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func typesFor(lockType entity.LockType) []entity.LockType {
	if lockType == "" {
		return entity.LockTypes
	}
	return []entity.LockType{lockType}
}
