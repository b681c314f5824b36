package entity

import "time"

type LockAction string

const (
	LockActionAcquired          LockAction = "acquired"
	LockActionRenewed           LockAction = "renewed"
	LockActionReleased          LockAction = "released"
	LockActionExpired           LockAction = "expired"
	LockActionConflict          LockAction = "conflict"
	LockActionStatusChanged     LockAction = "status_changed"
	LockActionInvalidTransition LockAction = "invalid_transition"
)

type LockEvent struct {
	ID         string
	RecordID   string
	LockType   LockType
	HolderID   string
	Action     LockAction
	Detail     string
	OccurredAt time.Time
}
