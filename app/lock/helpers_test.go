package lock

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithClock(clock.Now), WithLogger(quietLogger()))
		},
		"redis": func(t *testing.T, clock *fakeClock) Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis.Run: %v", err)
			}
			t.Cleanup(mr.Close)

			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })

			return NewRedisStore(client, WithClock(clock.Now), WithLogger(quietLogger()))
		},
	}
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store, clock *fakeClock)) {
	t.Helper()
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			fn(t, factory(t, clock), clock)
		})
	}
}
