package lock

import (
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

var (
	// ErrConflict matches any *ConflictError through errors.Is.
	ErrConflict = errors.New("lock is held by another holder")

	// ErrLockNotFound means no live lock exists for the key; the caller must re-acquire.
	ErrLockNotFound = errors.New("lock not found")

	// ErrForbidden means a live lock exists for the key but belongs to someone else.
	ErrForbidden = errors.New("lock is held by another holder")

	// ErrStaleVersion means a renewal carried a version older than the lock's current one.
	ErrStaleVersion = errors.New("lock version mismatch")

	ErrInvalidKey = errors.New("record id, lock type and holder id are required")
)

type ConflictError struct {
	LockedBy  string
	LockType  entity.LockType
	ExpiresAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s lock held by %s until %s", e.LockType, e.LockedBy, e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func validateKey(recordID string, lockType entity.LockType, holderID string) error {
	if recordID == "" || holderID == "" || !lockType.Valid() {
		return ErrInvalidKey
	}
	return nil
}
