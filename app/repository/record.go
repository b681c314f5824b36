package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

var ErrRecordNotFound = errors.New("record not found")

type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository constructs a repository over the delivery dashboard table.
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindByID loads the status projection of a record.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (entity.Record, error) {
	const query = `
		SELECT id, status, updated_at
		FROM dashboard
		WHERE id = ?
	`
	var (
		rec    entity.Record
		status string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &status, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Record{}, ErrRecordNotFound
	}
	if err != nil {
		return entity.Record{}, err
	}
	rec.Status = entity.RecordStatus(status)
	return rec, nil
}

// Exists reports whether a record with the given id exists.
func (r *RecordRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `
		SELECT COUNT(1)
		FROM dashboard
		WHERE id = ?
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStatus moves a record from one status to another. The from status
// guards against a concurrent writer that bypassed the lock.
func (r *RecordRepository) UpdateStatus(ctx context.Context, id string, from entity.RecordStatus, to entity.RecordStatus) error {
	const query = `
		UPDATE dashboard
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
