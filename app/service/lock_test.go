package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/repository"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []entity.LockEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.LockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) actions() []entity.LockAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.LockAction, len(p.events))
	for i, e := range p.events {
		out[i] = e.Action
	}
	return out
}

var recordColumns = []string{"id", "status", "updated_at"}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T) (*LockService, *lock.MemoryStore, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := lock.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewLockService(store, repository.NewRecordRepository(db), repository.NewLockHistoryRepository(db), pub, quietLogger())
	return svc, store, mock, pub
}

func as(holder string, privileged bool) context.Context {
	return WithIdentity(context.Background(), Identity{HolderID: holder, Privileged: privileged})
}

func expectRecord(mock sqlmock.Sqlmock, id string, status entity.RecordStatus) {
	mock.ExpectQuery("SELECT id, status, updated_at").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(id, string(status), time.Now()))
}

func expectExists(mock sqlmock.Sqlmock, id string, found bool) {
	n := 0
	if found {
		n = 1
	}
	mock.ExpectQuery("SELECT COUNT\\(1\\)").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestLockServiceAcquireConflictThenRelease(t *testing.T) {
	t.Parallel()

	svc, _, mock, pub := newTestService(t)

	expectRecord(mock, "42", entity.RecordStatusWaiting)
	l, err := svc.AcquireLock(as("h1", false), "42", entity.LockTypeEdit)
	if err != nil {
		t.Fatalf("AcquireLock h1: %v", err)
	}
	if time.Until(l.ExpiresAt) < 4*time.Minute {
		t.Fatalf("expected a five minute lease, got %v", l.ExpiresAt)
	}

	expectRecord(mock, "42", entity.RecordStatusWaiting)
	_, err = svc.AcquireLock(as("h2", false), "42", entity.LockTypeEdit)
	var conflict *lock.ConflictError
	if !errors.As(err, &conflict) || conflict.LockedBy != "h1" {
		t.Fatalf("expected conflict with h1, got %v", err)
	}

	if released, err := svc.ReleaseLock(as("h1", false), "42", ""); err != nil || !released {
		t.Fatalf("ReleaseLock: released=%v err=%v", released, err)
	}

	expectRecord(mock, "42", entity.RecordStatusWaiting)
	if _, err := svc.AcquireLock(as("h2", false), "42", entity.LockTypeEdit); err != nil {
		t.Fatalf("AcquireLock h2 after release: %v", err)
	}

	want := []entity.LockAction{entity.LockActionAcquired, entity.LockActionConflict, entity.LockActionReleased, entity.LockActionAcquired}
	got := pub.actions()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServiceAcquireMissingRecord(t *testing.T) {
	t.Parallel()

	svc, store, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT id, status, updated_at").
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	if _, err := svc.AcquireLock(as("h1", false), "404", entity.LockTypeEdit); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if status, _ := store.Status(context.Background(), "404", ""); status.IsLocked {
		t.Fatalf("no lock may be created for a missing record")
	}
}

func TestLockServiceAcquireStatusLockMissingRecord(t *testing.T) {
	t.Parallel()

	svc, store, mock, pub := newTestService(t)

	expectExists(mock, "404", false)
	if _, err := svc.AcquireStatusLock(as("h1", false), "404", entity.RecordStatusInProgress); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if status, _ := store.Status(context.Background(), "404", ""); status.IsLocked {
		t.Fatalf("no STATUS lock may be taken for a missing record")
	}
	if actions := pub.actions(); len(actions) != 0 {
		t.Fatalf("expected no events, got %v", actions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServiceRequiresIdentity(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)

	if _, err := svc.AcquireLock(context.Background(), "1", entity.LockTypeEdit); !errors.Is(err, ErrMissingHolder) {
		t.Fatalf("expected ErrMissingHolder, got %v", err)
	}
	if _, err := svc.ReleaseLock(context.Background(), "1", ""); !errors.Is(err, ErrMissingHolder) {
		t.Fatalf("expected ErrMissingHolder, got %v", err)
	}
}

func TestLockServiceInvalidTransitionReleasesStatusLock(t *testing.T) {
	t.Parallel()

	svc, store, mock, pub := newTestService(t)

	expectExists(mock, "7", true)
	expectRecord(mock, "7", entity.RecordStatusWaiting)
	_, err := svc.AcquireStatusLock(as("h1", false), "7", entity.RecordStatusComplete)
	var invalid *transition.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	status, err := store.Status(context.Background(), "7", "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.IsLocked {
		t.Fatalf("STATUS lock must be released after an invalid transition")
	}

	actions := pub.actions()
	if len(actions) == 0 || actions[len(actions)-1] != entity.LockActionInvalidTransition {
		t.Fatalf("expected invalid_transition event, got %v", actions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServicePrivilegedTransition(t *testing.T) {
	t.Parallel()

	svc, store, mock, _ := newTestService(t)
	ctx := as("admin", true)

	expectExists(mock, "9", true)
	expectRecord(mock, "9", entity.RecordStatusWaiting)
	if _, err := svc.AcquireStatusLock(ctx, "9", entity.RecordStatusIssue); err != nil {
		t.Fatalf("AcquireStatusLock: %v", err)
	}

	expectRecord(mock, "9", entity.RecordStatusWaiting)
	mock.ExpectExec("UPDATE dashboard").
		WithArgs("ISSUE", "9", "WAITING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := svc.ChangeStatus(ctx, "9", entity.RecordStatusIssue)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if rec.Status != entity.RecordStatusIssue {
		t.Fatalf("expected ISSUE, got %s", rec.Status)
	}

	if status, _ := store.Status(context.Background(), "9", entity.LockTypeStatus); status.IsLocked {
		t.Fatalf("STATUS lock must be released after the mutation")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServiceChangeStatusRequiresLock(t *testing.T) {
	t.Parallel()

	svc, store, mock, _ := newTestService(t)

	_, err := svc.ChangeStatus(as("h1", false), "7", entity.RecordStatusInProgress)
	var required *LockRequiredError
	if !errors.As(err, &required) || required.Current.IsLocked {
		t.Fatalf("expected LockRequiredError without holder, got %v", err)
	}

	if _, err := store.Acquire(context.Background(), "7", entity.LockTypeStatus, "h2"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_, err = svc.ChangeStatus(as("h1", false), "7", entity.RecordStatusInProgress)
	if !errors.As(err, &required) || required.Current.HolderID != "h2" {
		t.Fatalf("expected LockRequiredError naming h2, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServiceChangeStatusRejectsIllegalMove(t *testing.T) {
	t.Parallel()

	svc, store, mock, _ := newTestService(t)
	ctx := as("h1", false)

	if _, err := store.Acquire(context.Background(), "5", entity.LockTypeStatus, "h1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	expectRecord(mock, "5", entity.RecordStatusComplete)
	_, err := svc.ChangeStatus(ctx, "5", entity.RecordStatusInProgress)
	var invalid *transition.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if status, _ := store.Status(context.Background(), "5", entity.LockTypeStatus); status.IsLocked {
		t.Fatalf("STATUS lock must be released after rejection")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockServiceRenew(t *testing.T) {
	t.Parallel()

	svc, _, mock, _ := newTestService(t)
	ctx := as("h1", false)

	expectRecord(mock, "3", entity.RecordStatusInProgress)
	l, err := svc.AcquireLock(ctx, "3", entity.LockTypeAssign)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	renewed, err := svc.RenewLock(ctx, "3", entity.LockTypeAssign, l.Version)
	if err != nil {
		t.Fatalf("RenewLock: %v", err)
	}
	if renewed.Version <= l.Version {
		t.Fatalf("expected version bump")
	}

	if _, err := svc.RenewLock(as("h2", false), "3", entity.LockTypeAssign, 0); !errors.Is(err, lock.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLockServicePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pub := &recordingPublisher{err: errors.New("stream down")}
	svc := NewLockService(lock.NewMemoryStore(), repository.NewRecordRepository(db), nil, pub, quietLogger())

	expectRecord(mock, "1", entity.RecordStatusWaiting)
	if _, err := svc.AcquireLock(as("h1", false), "1", entity.LockTypeEdit); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
}

func TestLockServiceRecordExpired(t *testing.T) {
	t.Parallel()

	svc, _, _, pub := newTestService(t)
	svc.RecordExpired([]entity.Lock{{RecordID: "1", LockType: entity.LockTypeEdit, HolderID: "h1"}})

	actions := pub.actions()
	if len(actions) != 1 || actions[0] != entity.LockActionExpired {
		t.Fatalf("expected one expired event, got %v", actions)
	}
}

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), Identity{})); ok {
		t.Fatalf("empty holder must not count as an identity")
	}
	id, ok := IdentityFromContext(as("h1", true))
	if !ok || id.HolderID != "h1" || !id.Privileged {
		t.Fatalf("unexpected identity %+v", id)
	}
}
