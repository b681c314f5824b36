package service

import (
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrMissingHolder  = errors.New("holder identity is required")
)

// LockRequiredError is returned when a mutation is attempted without holding
// the lock that guards it. Current describes whoever holds it now, if anyone.
type LockRequiredError struct {
	RecordID string
	LockType entity.LockType
	Current  entity.LockStatus
}

func (e *LockRequiredError) Error() string {
	if e.Current.IsLocked {
		return fmt.Sprintf("%s lock on record %s is held by %s", e.LockType, e.RecordID, e.Current.HolderID)
	}
	return fmt.Sprintf("%s lock on record %s is required", e.LockType, e.RecordID)
}
