package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

var (
	ErrSessionBusy = errors.New("session already holds or is acquiring a lock")
	ErrNotHeld     = errors.New("session does not hold a lock")
	ErrReleased    = errors.New("session was released while acquiring")
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateHeld
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateReleasing:
		return "releasing"
	}
	return "unknown"
}

// Snapshot is a copy of the session's local view.
type Snapshot struct {
	State      State
	Lock       entity.Lock
	Generation uint64
}

// Session tracks one caller's lock on one (record, lock type) at a time.
// Timers belong to the Held state and are stopped on every exit from it;
// callbacks carry the generation that armed them and are ignored once it moves on.
type Session struct {
	backend  Backend
	cfg      Config
	listener Listener
	logger   logrus.FieldLogger
	now      func() time.Time

	mu            sync.Mutex
	state         State
	gen           uint64
	lock          entity.Lock
	target        entity.RecordStatus
	lastActivity  time.Time
	renewFailures int
	renewTimer    *time.Timer
	warnTimer     *time.Timer
	expiryTimer   *time.Timer
}

// NewSession builds an idle session. A nil listener discards notifications.
func NewSession(backend Backend, cfg Config, listener Listener, logger logrus.FieldLogger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = NoopListener{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		backend:  backend,
		cfg:      cfg,
		listener: listener,
		logger:   logger.WithField("component", "lock-session"),
		now:      time.Now,
	}, nil
}

// Snapshot returns the current state and lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Lock: s.lock, Generation: s.gen}
}

// State returns the current state.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Touch records user activity. Renewals only happen while activity is recent.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// AcquireLock requests lockType on recordID, retrying conflicts per the retry policy.
func (s *Session) AcquireLock(ctx context.Context, recordID string, lockType entity.LockType) (*Handle, error) {
	return s.acquire(ctx, recordID, lockType, "")
}

// AcquireStatusLock requests the STATUS lock for moving recordID to target.
func (s *Session) AcquireStatusLock(ctx context.Context, recordID string, target entity.RecordStatus) (*Handle, error) {
	return s.acquire(ctx, recordID, entity.LockTypeStatus, target)
}

func (s *Session) acquire(ctx context.Context, recordID string, lockType entity.LockType, target entity.RecordStatus) (*Handle, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.state = StateAcquiring
	s.gen++
	gen := s.gen
	s.lock = entity.Lock{RecordID: recordID, LockType: lockType}
	s.target = target
	s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		l, err := s.backend.Acquire(ctx, recordID, lockType, target)
		if err == nil {
			return s.granted(ctx, gen, l)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.failAcquire(gen, recordID, ctxErr)
			return nil, ctxErr
		}
		delay, retry := s.cfg.Retry.Next(attempt, err)
		if !retry {
			s.failAcquire(gen, recordID, err)
			return nil, err
		}

		s.logger.WithError(err).WithFields(logrus.Fields{
			"record_id": recordID,
			"lock_type": lockType,
			"attempt":   attempt,
		}).Debug("acquire failed, retrying")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.failAcquire(gen, recordID, ctx.Err())
			return nil, ctx.Err()
		case <-t.C:
		}

		if s.Snapshot().Generation != gen {
			return nil, ErrReleased
		}
	}
}

func (s *Session) granted(ctx context.Context, gen uint64, l entity.Lock) (*Handle, error) {
	s.mu.Lock()
	if s.gen != gen {
		stale := !s.busy()
		s.mu.Unlock()
		if stale {
			s.releaseRemote(context.WithoutCancel(ctx), l.RecordID, l.LockType)
		}
		return nil, ErrReleased
	}
	s.enterHeld(l)
	s.lastActivity = s.now()
	s.mu.Unlock()

	return &Handle{session: s, gen: gen, lock: l}, nil
}

func (s *Session) failAcquire(gen uint64, recordID string, err error) {
	s.mu.Lock()
	if s.gen == gen {
		s.state = StateIdle
		s.lock = entity.Lock{}
	}
	s.mu.Unlock()

	var conflict *lock.ConflictError
	if errors.As(err, &conflict) {
		s.listener.OnConflict(recordID, conflict, dto.ConflictMessage(conflict.LockedBy, conflict.LockType))
	}
}

// RenewLock extends the held lock. A lease that was taken over or lost is
// re-acquired once; if that fails the session goes idle and reports the loss.
func (s *Session) RenewLock(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateHeld {
		s.mu.Unlock()
		return ErrNotHeld
	}
	gen, held := s.gen, s.lock
	s.mu.Unlock()

	l, err := s.backend.Renew(ctx, held.RecordID, held.LockType, held.Version)

	s.mu.Lock()
	if s.gen != gen || s.state != StateHeld {
		s.mu.Unlock()
		return ErrNotHeld
	}
	if err == nil {
		s.renewFailures = 0
		s.enterHeld(l)
		s.mu.Unlock()
		return nil
	}

	lost := errors.Is(err, lock.ErrForbidden) || errors.Is(err, lock.ErrLockNotFound) || errors.Is(err, lock.ErrStaleVersion)
	if !lost {
		s.renewFailures++
		lost = s.renewFailures > s.cfg.MaxRenewFailures
	}
	if !lost {
		s.mu.Unlock()
		s.logger.WithError(err).WithField("record_id", held.RecordID).Warn("lock renewal failed")
		return err
	}

	s.stopTimers()
	s.state = StateAcquiring
	target := s.target
	s.mu.Unlock()

	s.logger.WithError(err).WithField("record_id", held.RecordID).Info("lock taken over or lapsed, re-acquiring")
	l, acqErr := s.backend.Acquire(ctx, held.RecordID, held.LockType, target)

	s.mu.Lock()
	if s.gen != gen || s.state != StateAcquiring {
		stale := !s.busy()
		s.mu.Unlock()
		if acqErr == nil && stale {
			s.releaseRemote(context.WithoutCancel(ctx), l.RecordID, l.LockType)
		}
		return ErrNotHeld
	}
	if acqErr == nil {
		s.renewFailures = 0
		s.enterHeld(l)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.loseLock(gen, StateAcquiring)
	return err
}

// ReleaseLock stops the timers, releases the lock on a best-effort basis and
// always leaves the session idle.
func (s *Session) ReleaseLock(ctx context.Context) error {
	s.release(ctx, 0, false)
	return nil
}

// release ends the current acquisition. When scoped is set it only acts while
// the session is still on generation gen.
func (s *Session) release(ctx context.Context, gen uint64, scoped bool) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateReleasing || (scoped && s.gen != gen) {
		s.mu.Unlock()
		return
	}
	prev, held := s.state, s.lock
	s.gen++
	s.stopTimers()
	s.state = StateReleasing
	s.mu.Unlock()

	if prev == StateHeld {
		s.releaseRemote(ctx, held.RecordID, held.LockType)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.lock = entity.Lock{}
	s.target = ""
	s.renewFailures = 0
	s.mu.Unlock()
}

// busy reports whether an acquisition newer than a stale grant owns the
// session. Caller holds mu.
func (s *Session) busy() bool {
	return s.state == StateAcquiring || s.state == StateHeld
}

// WithLock runs fn while holding lockType on recordID. The lock is released
// when fn returns, fails, panics or ctx is cancelled.
func (s *Session) WithLock(ctx context.Context, recordID string, lockType entity.LockType, fn func(ctx context.Context, l entity.Lock) error) error {
	h, err := s.AcquireLock(ctx, recordID, lockType)
	if err != nil {
		return err
	}
	defer h.Release(context.WithoutCancel(ctx))

	stop := context.AfterFunc(ctx, func() { h.Release(context.WithoutCancel(ctx)) })
	defer stop()

	return fn(ctx, h.Lock())
}

// forceIdle drops a held lock whose generation still matches. It is how the
// poller reports a holder mismatch seen in the store.
func (s *Session) forceIdle(gen uint64) bool {
	return s.loseLock(gen, StateHeld)
}

// loseLock is the one place a lock is declared lost.
func (s *Session) loseLock(gen uint64, from State) bool {
	s.mu.Lock()
	if s.gen != gen || s.state != from {
		s.mu.Unlock()
		return false
	}
	lost := s.lock
	s.gen++
	s.stopTimers()
	s.state = StateIdle
	s.lock = entity.Lock{}
	s.target = ""
	s.renewFailures = 0
	s.mu.Unlock()

	s.listener.OnLost(lost, dto.SessionExpiredMessage)
	return true
}

// enterHeld records l and re-arms the renewal, warning and expiry timers. Caller holds mu.
func (s *Session) enterHeld(l entity.Lock) {
	s.stopTimers()
	s.state = StateHeld
	s.lock = l

	gen := s.gen
	now := s.now()
	s.renewTimer = time.AfterFunc(s.cfg.RenewInterval, func() { s.onRenewTimer(gen) })
	s.warnTimer = time.AfterFunc(clampDelay(l.ExpiresAt.Sub(now)-s.cfg.WarningMargin), func() { s.onWarningTimer(gen) })
	s.expiryTimer = time.AfterFunc(clampDelay(l.ExpiresAt.Sub(now)), func() { s.loseLock(gen, StateHeld) })
}

// stopTimers cancels every Held timer. Caller holds mu.
func (s *Session) stopTimers() {
	for _, t := range []*time.Timer{s.renewTimer, s.warnTimer, s.expiryTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.renewTimer, s.warnTimer, s.expiryTimer = nil, nil, nil
}

func (s *Session) onRenewTimer(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateHeld {
		s.mu.Unlock()
		return
	}
	idle := s.now().Sub(s.lastActivity) > s.cfg.InactivityWindow
	if idle {
		s.renewTimer = time.AfterFunc(s.cfg.RenewInterval, func() { s.onRenewTimer(gen) })
		recordID := s.lock.RecordID
		s.mu.Unlock()
		s.logger.WithField("record_id", recordID).Debug("no recent activity, letting lock lapse")
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RenewInterval)
	defer cancel()
	if err := s.RenewLock(ctx); err != nil && !errors.Is(err, ErrNotHeld) {
		s.mu.Lock()
		if s.gen == gen && s.state == StateHeld {
			if s.renewTimer != nil {
				s.renewTimer.Stop()
			}
			s.renewTimer = time.AfterFunc(s.cfg.RenewInterval, func() { s.onRenewTimer(gen) })
		}
		s.mu.Unlock()
	}
}

func (s *Session) onWarningTimer(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateHeld {
		s.mu.Unlock()
		return
	}
	l := s.lock
	s.mu.Unlock()
	s.listener.OnWarning(l)
}

func (s *Session) releaseRemote(ctx context.Context, recordID string, lockType entity.LockType) {
	if err := s.backend.Release(ctx, recordID, lockType); err != nil {
		s.logger.WithError(err).WithField("record_id", recordID).Warn("release failed, lease expiry will free the lock")
	}
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Handle is a scoped lock. Release is safe to call more than once and only
// affects the acquisition that produced the handle.
type Handle struct {
	session *Session
	gen     uint64
	lock    entity.Lock
	once    sync.Once
}

// Lock returns the lock as granted.
func (h *Handle) Lock() entity.Lock {
	return h.lock
}

// Release drops the lock if the session still holds this acquisition.
func (h *Handle) Release(ctx context.Context) {
	h.once.Do(func() {
		h.session.release(ctx, h.gen, true)
	})
}
