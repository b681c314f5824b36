package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

func TestPollerReportsBusyAndFree(t *testing.T) {
	t.Parallel()

	store := lock.NewMemoryStore()
	p := NewPoller(NewStoreBackend(store, "alice"), "alice", time.Second, quietLogger())

	var (
		mu     sync.Mutex
		events []string
	)
	p.OnBusy = func(recordID string, status entity.LockStatus) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "busy:"+recordID+":"+status.HolderID)
	}
	p.OnFree = func(recordID string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "free:"+recordID)
	}

	p.Watch("42")
	p.Watch("43")
	if _, err := store.Acquire(context.Background(), "43", entity.LockTypeEdit, "alice"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Tick(context.Background())

	if _, err := store.Acquire(context.Background(), "42", entity.LockTypeRemark, "bob"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Tick(context.Background())
	p.Tick(context.Background())

	if _, err := store.Release(context.Background(), "42", entity.LockTypeRemark, "bob"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	p.Tick(context.Background())

	p.Unwatch("42")
	if _, err := store.Acquire(context.Background(), "42", entity.LockTypeRemark, "bob"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []string{"busy:42:bob", "free:42"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestPollerForcesIdleOnHolderMismatch(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := lock.NewMemoryStore(lock.WithClock(clock.Now))
	listener := &recordingListener{}
	s := newSession(t, NewStoreBackend(store, "h1"), quietConfig(), listener)
	s.now = clock.Now

	p := NewPoller(NewStoreBackend(store, "h1"), "h1", time.Second, quietLogger())
	p.Track(s)

	if _, err := s.AcquireLock(context.Background(), "42", entity.LockTypeEdit); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	p.Tick(context.Background())
	if s.State() != StateHeld {
		t.Fatalf("matching holder must stay held, got %s", s.State())
	}

	clock.Advance(lock.DefaultLease + time.Second)
	if _, err := store.Acquire(context.Background(), "42", entity.LockTypeEdit, "h2"); err != nil {
		t.Fatalf("h2 Acquire: %v", err)
	}

	p.Tick(context.Background())
	if s.State() != StateIdle {
		t.Fatalf("expected idle after mismatch, got %s", s.State())
	}
	if _, _, lost := listener.snapshot(); len(lost) != 1 {
		t.Fatalf("expected one loss notice, got %v", lost)
	}

	p.Untrack(s)
}

func TestPollerRunStopsWithContext(t *testing.T) {
	t.Parallel()

	store := lock.NewMemoryStore()
	p := NewPoller(NewStoreBackend(store, "alice"), "alice", 10*time.Millisecond, quietLogger())

	busy := make(chan string, 1)
	p.OnBusy = func(recordID string, _ entity.LockStatus) { busy <- recordID }
	p.Watch("7")
	if _, err := store.Acquire(context.Background(), "7", entity.LockTypeStatus, "bob"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case id := <-busy:
		if id != "7" {
			t.Fatalf("unexpected record %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("poller never reported the busy record")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}
