package transition

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

var adjacency = map[entity.RecordStatus][]entity.RecordStatus{
	entity.RecordStatusWaiting:    {entity.RecordStatusInProgress, entity.RecordStatusCancel},
	entity.RecordStatusInProgress: {entity.RecordStatusComplete, entity.RecordStatusIssue},
	entity.RecordStatusIssue:      {entity.RecordStatusInProgress},
	entity.RecordStatusComplete:   {},
	entity.RecordStatusCancel:     {},
}

type InvalidTransitionError struct {
	From entity.RecordStatus
	To   entity.RecordStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("record is already %s", e.From)
	}
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

// CanTransition reports whether a record may move from current to target.
// Privileged callers skip the adjacency table but never a no-op change.
func CanTransition(current, target entity.RecordStatus, privileged bool) bool {
	if current == target {
		return false
	}
	if privileged {
		return true
	}
	for _, next := range adjacency[current] {
		if next == target {
			return true
		}
	}
	return false
}

// Allowed returns the statuses a non-privileged caller may move to from current.
func Allowed(current entity.RecordStatus) []entity.RecordStatus {
	next := adjacency[current]
	out := make([]entity.RecordStatus, len(next))
	copy(out, next)
	return out
}

// Validate is CanTransition returning an *InvalidTransitionError on rejection.
func Validate(current, target entity.RecordStatus, privileged bool) error {
	if CanTransition(current, target, privileged) {
		return nil
	}
	return &InvalidTransitionError{From: current, To: target}
}
