package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

type LockHistoryRepository struct {
	db *sql.DB
}

// NewLockHistoryRepository constructs a repository for the lock audit trail.
func NewLockHistoryRepository(db *sql.DB) *LockHistoryRepository {
	return &LockHistoryRepository{db: db}
}

// Create stores a lock event. Replayed events are ignored by event id.
func (r *LockHistoryRepository) Create(ctx context.Context, event entity.LockEvent) error {
	const query = `
		INSERT IGNORE INTO lock_history (event_id, record_id, lock_type, holder_id, action, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.RecordID, string(event.LockType), event.HolderID, string(event.Action), event.Detail, event.OccurredAt.UTC())
	return err
}

// ListByRecord returns the most recent events for a record, newest first.
func (r *LockHistoryRepository) ListByRecord(ctx context.Context, recordID string, limit int) ([]entity.LockEvent, error) {
	const query = `
		SELECT event_id, record_id, lock_type, holder_id, action, detail, occurred_at
		FROM lock_history
		WHERE record_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, recordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []entity.LockEvent
	for rows.Next() {
		var (
			e          entity.LockEvent
			lockType   string
			action     string
			occurredAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &lockType, &e.HolderID, &action, &e.Detail, &occurredAt); err != nil {
			return nil, err
		}
		e.LockType = entity.LockType(lockType)
		e.Action = entity.LockAction(action)
		e.OccurredAt = occurredAt
		events = append(events, e)
	}
	return events, rows.Err()
}
