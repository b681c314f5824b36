package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

// Config holds the caller-side lock timings.
type Config struct {
	Lease            time.Duration
	RenewInterval    time.Duration
	WarningMargin    time.Duration
	InactivityWindow time.Duration
	PollInterval     time.Duration
	MaxRenewFailures int
	Retry            RetryPolicy
}

// DefaultConfig returns timings matched to the default five minute lease.
func DefaultConfig() Config {
	return Config{
		Lease:            lock.DefaultLease,
		RenewInterval:    2 * time.Minute,
		WarningMargin:    time.Minute,
		InactivityWindow: 4 * time.Minute,
		PollInterval:     30 * time.Second,
		MaxRenewFailures: 2,
		Retry:            DefaultRetryPolicy(),
	}
}

// Validate rejects timings that would let a lock lapse before its first renewal.
func (c Config) Validate() error {
	if c.Lease <= 0 || c.RenewInterval <= 0 || c.WarningMargin <= 0 || c.InactivityWindow <= 0 || c.PollInterval <= 0 {
		return errors.New("client timings must be positive")
	}
	if c.MaxRenewFailures < 0 {
		return errors.New("max renew failures cannot be negative")
	}
	if c.RenewInterval >= c.Lease-c.WarningMargin {
		return fmt.Errorf("renew interval (%v) must be shorter than lease (%v) minus warning margin (%v)",
			c.RenewInterval, c.Lease, c.WarningMargin)
	}
	return c.Retry.Validate()
}
