package entity

import (
	"fmt"
	"strings"
	"time"
)

type RecordStatus string

const (
	RecordStatusWaiting    RecordStatus = "WAITING"
	RecordStatusInProgress RecordStatus = "IN_PROGRESS"
	RecordStatusComplete   RecordStatus = "COMPLETE"
	RecordStatusIssue      RecordStatus = "ISSUE"
	RecordStatusCancel     RecordStatus = "CANCEL"
)

// RecordStatuses lists every delivery status.
var RecordStatuses = []RecordStatus{
	RecordStatusWaiting,
	RecordStatusInProgress,
	RecordStatusComplete,
	RecordStatusIssue,
	RecordStatusCancel,
}

// ParseRecordStatus normalizes a status name and rejects unknown values.
func ParseRecordStatus(value string) (RecordStatus, error) {
	s := RecordStatus(strings.ToUpper(strings.TrimSpace(value)))
	for _, known := range RecordStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown record status %q", value)
}

// Record is the lock-relevant projection of a delivery dashboard row.
type Record struct {
	ID        string
	Status    RecordStatus
	UpdatedAt time.Time
}
