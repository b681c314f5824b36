package client

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

var ErrTargetUnsupported = errors.New("backend cannot validate status targets")

// Backend is the lock store as seen by one caller. The holder is implicit.
//
// Acquire returns *lock.ConflictError on conflict. Renew returns
// lock.ErrLockNotFound, lock.ErrForbidden or lock.ErrStaleVersion when the
// lease is gone, taken over or raced. Any other error is a transport fault.
type Backend interface {
	Acquire(ctx context.Context, recordID string, lockType entity.LockType, target entity.RecordStatus) (entity.Lock, error)
	Renew(ctx context.Context, recordID string, lockType entity.LockType, version uint64) (entity.Lock, error)
	Release(ctx context.Context, recordID string, lockType entity.LockType) error
	Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error)
}

// StoreBackend talks to an in-process lock store on behalf of one holder.
// It skips record lookups and transition checks.
type StoreBackend struct {
	store    lock.Store
	holderID string
}

func NewStoreBackend(store lock.Store, holderID string) *StoreBackend {
	return &StoreBackend{store: store, holderID: holderID}
}

func (b *StoreBackend) Acquire(ctx context.Context, recordID string, lockType entity.LockType, target entity.RecordStatus) (entity.Lock, error) {
	if target != "" {
		return entity.Lock{}, ErrTargetUnsupported
	}
	return b.store.Acquire(ctx, recordID, lockType, b.holderID)
}

func (b *StoreBackend) Renew(ctx context.Context, recordID string, lockType entity.LockType, version uint64) (entity.Lock, error) {
	return b.store.Renew(ctx, recordID, lockType, b.holderID, version)
}

func (b *StoreBackend) Release(ctx context.Context, recordID string, lockType entity.LockType) error {
	_, err := b.store.Release(ctx, recordID, lockType, b.holderID)
	return err
}

func (b *StoreBackend) Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error) {
	return b.store.Status(ctx, recordID, lockType)
}
