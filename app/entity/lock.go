package entity

import (
	"fmt"
	"strings"
	"time"
)

type LockType string

const (
	LockTypeEdit   LockType = "EDIT"
	LockTypeStatus LockType = "STATUS"
	LockTypeAssign LockType = "ASSIGN"
	LockTypeRemark LockType = "REMARK"
)

// LockTypes lists every lock purpose in reporting order.
var LockTypes = []LockType{LockTypeEdit, LockTypeStatus, LockTypeAssign, LockTypeRemark}

// ParseLockType normalizes a lock type name and rejects unknown purposes.
func ParseLockType(value string) (LockType, error) {
	t := LockType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown lock type %q", value)
	}
	return t, nil
}

// Valid reports whether t is one of the known purposes.
func (t LockType) Valid() bool {
	switch t {
	case LockTypeEdit, LockTypeStatus, LockTypeAssign, LockTypeRemark:
		return true
	}
	return false
}

// Purpose is the verb phrase used in user-facing conflict messages.
func (t LockType) Purpose() string {
	switch t {
	case LockTypeEdit:
		return "editing"
	case LockTypeStatus:
		return "changing the status of"
	case LockTypeAssign:
		return "assigning a driver to"
	case LockTypeRemark:
		return "annotating"
	}
	return "working on"
}

type Lock struct {
	RecordID   string
	LockType   LockType
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Version    uint64
}

// Expired reports whether the lease has run out at now.
func (l Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// ExpiresIn returns the remaining lease, never negative.
func (l Lock) ExpiresIn(now time.Time) time.Duration {
	d := l.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type LockStatus struct {
	IsLocked  bool
	HolderID  string
	LockType  LockType
	ExpiresAt time.Time
	Locks     []Lock
}

// StatusFromLocks builds a status report from the live locks of one record.
// The first lock in the slice is reported as the primary holder.
func StatusFromLocks(locks []Lock) LockStatus {
	if len(locks) == 0 {
		return LockStatus{}
	}
	return LockStatus{
		IsLocked:  true,
		HolderID:  locks[0].HolderID,
		LockType:  locks[0].LockType,
		ExpiresAt: locks[0].ExpiresAt,
		Locks:     locks,
	}
}
