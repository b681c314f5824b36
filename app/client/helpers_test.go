package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type recordingListener struct {
	mu        sync.Mutex
	conflicts []string
	warnings  int
	lost      []string
}

func (l *recordingListener) OnConflict(_ string, _ *lock.ConflictError, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conflicts = append(l.conflicts, message)
}

func (l *recordingListener) OnWarning(entity.Lock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings++
}

func (l *recordingListener) OnLost(_ entity.Lock, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost = append(l.lost, message)
}

func (l *recordingListener) snapshot() (conflicts []string, warnings int, lost []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.conflicts...), l.warnings, append([]string(nil), l.lost...)
}

// scriptedBackend wraps a backend and can inject failures.
type scriptedBackend struct {
	Backend

	mu          sync.Mutex
	acquires    int
	acquireErrs []error
	renewErrs   []error
	releaseErr  error
	releaseSeen int

	// When gate is set, Acquire signals entered and waits for gate to close.
	gate    chan struct{}
	entered chan struct{}
}

func (b *scriptedBackend) Acquire(ctx context.Context, recordID string, lockType entity.LockType, target entity.RecordStatus) (entity.Lock, error) {
	b.mu.Lock()
	b.acquires++
	gate, entered := b.gate, b.entered
	if len(b.acquireErrs) > 0 {
		err := b.acquireErrs[0]
		b.acquireErrs = b.acquireErrs[1:]
		b.mu.Unlock()
		return entity.Lock{}, err
	}
	b.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return b.Backend.Acquire(ctx, recordID, lockType, target)
}

// hold makes the next Acquire calls block until the returned func is called.
func (b *scriptedBackend) hold() (entered <-chan struct{}, open func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 4)
	b.mu.Lock()
	b.gate, b.entered = gate, ch
	b.mu.Unlock()
	return ch, func() { close(gate) }
}

func (b *scriptedBackend) Renew(ctx context.Context, recordID string, lockType entity.LockType, version uint64) (entity.Lock, error) {
	b.mu.Lock()
	if len(b.renewErrs) > 0 {
		err := b.renewErrs[0]
		b.renewErrs = b.renewErrs[1:]
		b.mu.Unlock()
		return entity.Lock{}, err
	}
	b.mu.Unlock()
	return b.Backend.Renew(ctx, recordID, lockType, version)
}

func (b *scriptedBackend) Release(ctx context.Context, recordID string, lockType entity.LockType) error {
	b.mu.Lock()
	b.releaseSeen++
	err := b.releaseErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Release(ctx, recordID, lockType)
}

func (b *scriptedBackend) counts() (acquires, releases int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquires, b.releaseSeen
}

var errNetwork = errors.New("connection reset")

// quietConfig keeps every timer far in the future.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}
	return cfg
}

func newSession(t *testing.T, backend Backend, cfg Config, listener Listener) *Session {
	t.Helper()
	s, err := NewSession(backend, cfg, listener, quietLogger())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.ReleaseLock(context.Background()) })
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
