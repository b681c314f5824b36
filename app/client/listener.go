package client

import (
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
)

// Listener receives user-facing lock notifications. Callbacks run on timer
// goroutines and must not block.
type Listener interface {
	OnConflict(recordID string, conflict *lock.ConflictError, message string)
	OnWarning(l entity.Lock)
	OnLost(l entity.Lock, message string)
}

type NoopListener struct{}

func (NoopListener) OnConflict(string, *lock.ConflictError, string) {}
func (NoopListener) OnWarning(entity.Lock)                          {}
func (NoopListener) OnLost(entity.Lock, string)                     {}

// LogListener writes notifications to a logger.
type LogListener struct {
	Logger logrus.FieldLogger
}

func (l LogListener) OnConflict(recordID string, conflict *lock.ConflictError, message string) {
	l.Logger.WithFields(logrus.Fields{
		"record_id":  recordID,
		"locked_by":  conflict.LockedBy,
		"lock_type":  conflict.LockType,
		"expires_at": conflict.ExpiresAt,
	}).Warn(message)
}

func (l LogListener) OnWarning(lk entity.Lock) {
	l.Logger.WithFields(logrus.Fields{
		"record_id":  lk.RecordID,
		"lock_type":  lk.LockType,
		"expires_at": lk.ExpiresAt,
	}).Warn("lock expires soon, keep working to renew it")
}

func (l LogListener) OnLost(lk entity.Lock, message string) {
	l.Logger.WithFields(logrus.Fields{
		"record_id": lk.RecordID,
		"lock_type": lk.LockType,
	}).Error(message)
}
