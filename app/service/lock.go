package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/repository"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

// RecordRepository is the part of the record store the lock service needs.
type RecordRepository interface {
	FindByID(ctx context.Context, id string) (entity.Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, from entity.RecordStatus, to entity.RecordStatus) error
}

// HistoryRepository reads the lock audit trail.
type HistoryRepository interface {
	ListByRecord(ctx context.Context, recordID string, limit int) ([]entity.LockEvent, error)
}

type LockService struct {
	store   lock.Store
	records RecordRepository
	history HistoryRepository
	events  EventPublisher
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewLockService builds the lock service with dependencies. history and events may be nil.
func NewLockService(store lock.Store, records RecordRepository, history HistoryRepository, events EventPublisher, logger logrus.FieldLogger) *LockService {
	if events == nil {
		events = NoopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LockService{
		store:   store,
		records: records,
		history: history,
		events:  events,
		logger:  logger.WithField("component", "lock-service"),
		now:     time.Now,
	}
}

// AcquireLock grants lockType on an existing record to the caller.
func (s *LockService) AcquireLock(ctx context.Context, recordID string, lockType entity.LockType) (entity.Lock, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return entity.Lock{}, ErrMissingHolder
	}

	if _, err := s.findRecord(ctx, recordID); err != nil {
		return entity.Lock{}, err
	}

	l, err := s.store.Acquire(ctx, recordID, lockType, identity.HolderID)
	if err != nil {
		s.handleAcquireError(ctx, recordID, lockType, identity.HolderID, err)
		return entity.Lock{}, err
	}

	s.publish(ctx, recordID, lockType, identity.HolderID, entity.LockActionAcquired, "")
	return l, nil
}

// AcquireStatusLock grants the STATUS lock only when the caller may move the
// record to target. A rejected transition releases the lock before returning.
// The status is read after the grant, since only a STATUS holder can change it.
func (s *LockService) AcquireStatusLock(ctx context.Context, recordID string, target entity.RecordStatus) (entity.Lock, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return entity.Lock{}, ErrMissingHolder
	}

	exists, err := s.records.Exists(ctx, recordID)
	if err != nil {
		return entity.Lock{}, fmt.Errorf("check record %s: %w", recordID, err)
	}
	if !exists {
		return entity.Lock{}, ErrRecordNotFound
	}

	l, err := s.store.Acquire(ctx, recordID, entity.LockTypeStatus, identity.HolderID)
	if err != nil {
		s.handleAcquireError(ctx, recordID, entity.LockTypeStatus, identity.HolderID, err)
		return entity.Lock{}, err
	}

	rec, err := s.findRecord(ctx, recordID)
	if err != nil {
		s.releaseQuietly(ctx, recordID, entity.LockTypeStatus, identity.HolderID)
		return entity.Lock{}, err
	}

	if err := transition.Validate(rec.Status, target, identity.Privileged); err != nil {
		s.releaseQuietly(ctx, recordID, entity.LockTypeStatus, identity.HolderID)
		s.publish(ctx, recordID, entity.LockTypeStatus, identity.HolderID, entity.LockActionInvalidTransition, err.Error())
		return entity.Lock{}, err
	}

	s.publish(ctx, recordID, entity.LockTypeStatus, identity.HolderID, entity.LockActionAcquired, "target="+string(target))
	return l, nil
}

// RenewLock extends the caller's lock.
func (s *LockService) RenewLock(ctx context.Context, recordID string, lockType entity.LockType, version uint64) (entity.Lock, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return entity.Lock{}, ErrMissingHolder
	}

	l, err := s.store.Renew(ctx, recordID, lockType, identity.HolderID, version)
	if err != nil {
		return entity.Lock{}, err
	}

	s.publish(ctx, recordID, lockType, identity.HolderID, entity.LockActionRenewed, "")
	return l, nil
}

// ReleaseLock drops the caller's lock of lockType, or every lock the caller
// holds on the record when lockType is empty.
func (s *LockService) ReleaseLock(ctx context.Context, recordID string, lockType entity.LockType) (bool, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false, ErrMissingHolder
	}

	types := entity.LockTypes
	if lockType != "" {
		types = []entity.LockType{lockType}
	}

	releasedAny := false
	for _, t := range types {
		released, err := s.store.Release(ctx, recordID, t, identity.HolderID)
		if err != nil {
			return releasedAny, err
		}
		if released {
			releasedAny = true
			s.publish(ctx, recordID, t, identity.HolderID, entity.LockActionReleased, "")
		}
	}
	return releasedAny, nil
}

// LockStatus reports who holds locks on a record.
func (s *LockService) LockStatus(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error) {
	return s.store.Status(ctx, recordID, lockType)
}

// ChangeStatus applies a status transition on behalf of the STATUS lock holder
// and releases the lock afterwards.
func (s *LockService) ChangeStatus(ctx context.Context, recordID string, target entity.RecordStatus) (entity.Record, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return entity.Record{}, ErrMissingHolder
	}

	current, err := s.store.Status(ctx, recordID, entity.LockTypeStatus)
	if err != nil {
		return entity.Record{}, err
	}
	if !current.IsLocked || current.HolderID != identity.HolderID {
		return entity.Record{}, &LockRequiredError{RecordID: recordID, LockType: entity.LockTypeStatus, Current: current}
	}

	rec, err := s.findRecord(ctx, recordID)
	if err != nil {
		s.releaseQuietly(ctx, recordID, entity.LockTypeStatus, identity.HolderID)
		return entity.Record{}, err
	}

	if err := transition.Validate(rec.Status, target, identity.Privileged); err != nil {
		s.releaseQuietly(ctx, recordID, entity.LockTypeStatus, identity.HolderID)
		s.publish(ctx, recordID, entity.LockTypeStatus, identity.HolderID, entity.LockActionInvalidTransition, err.Error())
		return entity.Record{}, err
	}

	if err := s.records.UpdateStatus(ctx, recordID, rec.Status, target); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return entity.Record{}, fmt.Errorf("record %s changed concurrently: %w", recordID, err)
		}
		return entity.Record{}, fmt.Errorf("update status: %w", err)
	}

	detail := fmt.Sprintf("%s->%s", rec.Status, target)
	s.publish(ctx, recordID, entity.LockTypeStatus, identity.HolderID, entity.LockActionStatusChanged, detail)
	s.releaseQuietly(ctx, recordID, entity.LockTypeStatus, identity.HolderID)

	rec.Status = target
	rec.UpdatedAt = s.now()
	return rec, nil
}

// History returns the latest lock events for a record.
func (s *LockService) History(ctx context.Context, recordID string, limit int) ([]entity.LockEvent, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListByRecord(ctx, recordID, limit)
}

// RecordExpired publishes expiry events for locks dropped by the sweeper.
func (s *LockService) RecordExpired(locks []entity.Lock) {
	ctx := context.Background()
	for _, l := range locks {
		s.publish(ctx, l.RecordID, l.LockType, l.HolderID, entity.LockActionExpired, "")
	}
}

func (s *LockService) findRecord(ctx context.Context, recordID string) (entity.Record, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return entity.Record{}, ErrRecordNotFound
	}
	if err != nil {
		return entity.Record{}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	return rec, nil
}

func (s *LockService) handleAcquireError(ctx context.Context, recordID string, lockType entity.LockType, holderID string, err error) {
	var conflict *lock.ConflictError
	if errors.As(err, &conflict) {
		s.logger.WithFields(logrus.Fields{
			"record_id": recordID,
			"lock_type": lockType,
			"holder_id": holderID,
			"locked_by": conflict.LockedBy,
		}).Debug("lock conflict")
		s.publish(ctx, recordID, lockType, holderID, entity.LockActionConflict, "locked_by="+conflict.LockedBy)
		return
	}
	if errors.Is(err, lock.ErrInvalidKey) {
		return
	}
	s.logger.WithError(err).WithField("record_id", recordID).Error("acquire lock failed")
}

func (s *LockService) releaseQuietly(ctx context.Context, recordID string, lockType entity.LockType, holderID string) {
	released, err := s.store.Release(ctx, recordID, lockType, holderID)
	if err != nil {
		s.logger.WithError(err).WithField("record_id", recordID).Warn("release lock failed")
		return
	}
	if released {
		s.publish(ctx, recordID, lockType, holderID, entity.LockActionReleased, "")
	}
}

func (s *LockService) publish(ctx context.Context, recordID string, lockType entity.LockType, holderID string, action entity.LockAction, detail string) {
	event := entity.LockEvent{
		ID:         uuid.NewString(),
		RecordID:   recordID,
		LockType:   lockType,
		HolderID:   holderID,
		Action:     action,
		Detail:     detail,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"record_id": recordID,
			"action":    action,
		}).Warn("publish lock event failed")
	}
}
