package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

func TestRetryPolicyNext(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	conflict := &lock.ConflictError{LockedBy: "bob"}

	cases := []struct {
		attempt   int
		err       error
		wantRetry bool
	}{
		{attempt: 1, err: conflict, wantRetry: true},
		{attempt: 2, err: conflict, wantRetry: true},
		{attempt: 3, err: conflict, wantRetry: false},
		{attempt: 1, err: fmt.Errorf("%w: connection reset", ErrTransport), wantRetry: true},
		{attempt: 3, err: fmt.Errorf("%w: connection reset", ErrTransport), wantRetry: false},
		{attempt: 1, err: errors.New("redis: connection pool timeout"), wantRetry: true},
		{attempt: 1, err: lock.ErrForbidden, wantRetry: false},
		{attempt: 1, err: lock.ErrLockNotFound, wantRetry: false},
		{attempt: 1, err: service.ErrRecordNotFound, wantRetry: false},
		{attempt: 1, err: &transition.InvalidTransitionError{From: entity.RecordStatusComplete, To: entity.RecordStatusWaiting}, wantRetry: false},
		{attempt: 1, err: ErrUnauthorized, wantRetry: false},
		{attempt: 1, err: ErrTargetUnsupported, wantRetry: false},
		{attempt: 1, err: context.DeadlineExceeded, wantRetry: false},
		{attempt: 1, err: nil, wantRetry: false},
	}
	for _, tc := range cases {
		delay, retry := p.Next(tc.attempt, tc.err)
		if retry != tc.wantRetry {
			t.Fatalf("attempt %d err %v: expected retry=%v", tc.attempt, tc.err, tc.wantRetry)
		}
		if retry && delay != 2*time.Second {
			t.Fatalf("expected 2s delay, got %v", delay)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	cfg := DefaultConfig()
	cfg.RenewInterval = 4 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected renew interval >= lease - warning to be rejected")
	}

	cfg = DefaultConfig()
	cfg.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero poll interval to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero attempts to be rejected")
	}
}
