package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

// StatusReader is the part of a backend the poller uses.
type StatusReader interface {
	Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error)
}

// Poller re-checks authoritative lock state. For viewed records it reports
// when another holder takes or frees them. For tracked sessions it forces a
// session idle once the store shows a different holder than the one it believes it is.
type Poller struct {
	reader   StatusReader
	holderID string
	interval time.Duration
	logger   logrus.FieldLogger

	// OnBusy and OnFree fire on changes only.
	OnBusy func(recordID string, status entity.LockStatus)
	OnFree func(recordID string)

	mu       sync.Mutex
	watched  map[string]bool
	sessions map[*Session]struct{}
}

// NewPoller builds a poller for holderID. Locks held by holderID are not reported as busy.
func NewPoller(reader StatusReader, holderID string, interval time.Duration, logger logrus.FieldLogger) *Poller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		reader:   reader,
		holderID: holderID,
		interval: interval,
		logger:   logger.WithField("component", "lock-poller"),
		watched:  make(map[string]bool),
		sessions: make(map[*Session]struct{}),
	}
}

func (p *Poller) Watch(recordID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watched[recordID]; !ok {
		p.watched[recordID] = false
	}
}

func (p *Poller) Unwatch(recordID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watched, recordID)
}

func (p *Poller) Track(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s] = struct{}{}
}

func (p *Poller) Untrack(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, s)
}

// Run polls every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation pass.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	records := make([]string, 0, len(p.watched))
	for id := range p.watched {
		records = append(records, id)
	}
	sessions := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, id := range records {
		p.checkRecord(ctx, id)
	}
	for _, s := range sessions {
		p.checkSession(ctx, s)
	}
}

func (p *Poller) checkRecord(ctx context.Context, recordID string) {
	status, err := p.reader.Status(ctx, recordID, "")
	if err != nil {
		p.logger.WithError(err).WithField("record_id", recordID).Warn("lock status poll failed")
		return
	}

	busy := false
	for _, l := range status.Locks {
		if l.HolderID != p.holderID {
			busy = true
			break
		}
	}

	p.mu.Lock()
	was, ok := p.watched[recordID]
	if ok {
		p.watched[recordID] = busy
	}
	p.mu.Unlock()
	if !ok || was == busy {
		return
	}

	if busy && p.OnBusy != nil {
		p.OnBusy(recordID, status)
	}
	if !busy && p.OnFree != nil {
		p.OnFree(recordID)
	}
}

func (p *Poller) checkSession(ctx context.Context, s *Session) {
	snap := s.Snapshot()
	if snap.State != StateHeld {
		return
	}

	status, err := p.reader.Status(ctx, snap.Lock.RecordID, snap.Lock.LockType)
	if err != nil {
		p.logger.WithError(err).WithField("record_id", snap.Lock.RecordID).Warn("lock status poll failed")
		return
	}
	if status.IsLocked && status.HolderID == snap.Lock.HolderID {
		return
	}

	if s.forceIdle(snap.Generation) {
		p.logger.WithFields(logrus.Fields{
			"record_id": snap.Lock.RecordID,
			"lock_type": snap.Lock.LockType,
			"holder_id": status.HolderID,
		}).Info("held lock no longer in the store, session reset")
	}
}
