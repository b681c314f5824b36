package dto

import (
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	types "github.com/vibast-solutions/ms-go-record-locks/app/types"
)

type LockResponse struct {
	RecordID         string    `json:"record_id"`
	HolderID         string    `json:"holder_id"`
	LockType         string    `json:"lock_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
	Version          uint64    `json:"version"`
}

// NewLockResponse renders a granted lock.
func NewLockResponse(l entity.Lock, now time.Time) LockResponse {
	return LockResponse{
		RecordID:         l.RecordID,
		HolderID:         l.HolderID,
		LockType:         string(l.LockType),
		ExpiresAt:        l.ExpiresAt.UTC(),
		ExpiresInSeconds: int64(l.ExpiresIn(now) / time.Second),
		Version:          l.Version,
	}
}

// Lock converts the response back into an entity.
func (r LockResponse) Lock() entity.Lock {
	return entity.Lock{
		RecordID:  r.RecordID,
		HolderID:  r.HolderID,
		LockType:  entity.LockType(r.LockType),
		ExpiresAt: r.ExpiresAt,
		Version:   r.Version,
	}
}

type ConflictDetail struct {
	LockedBy  string    `json:"locked_by"`
	LockType  string    `json:"lock_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConflictError struct {
	Message string         `json:"message"`
	Detail  ConflictDetail `json:"detail"`
}

// ConflictResponse is the 423 body.
type ConflictResponse struct {
	Error ConflictError `json:"error"`
}

// NewConflictResponse renders a lock conflict with a user-facing message.
func NewConflictResponse(c *lock.ConflictError) ConflictResponse {
	return ConflictResponse{
		Error: ConflictError{
			Message: ConflictMessage(c.LockedBy, c.LockType),
			Detail: ConflictDetail{
				LockedBy:  c.LockedBy,
				LockType:  string(c.LockType),
				ExpiresAt: c.ExpiresAt.UTC(),
			},
		},
	}
}

// Conflict converts the body back into a store conflict.
func (r ConflictResponse) Conflict() *lock.ConflictError {
	return &lock.ConflictError{
		LockedBy:  r.Error.Detail.LockedBy,
		LockType:  entity.LockType(r.Error.Detail.LockType),
		ExpiresAt: r.Error.Detail.ExpiresAt,
	}
}

// ConflictMessage is the text shown when someone else holds a lock.
func ConflictMessage(holder string, lockType entity.LockType) string {
	return holder + " is currently " + lockType.Purpose() + " this record, try again shortly"
}

// SessionExpiredMessage is the text shown when a held lock was taken over or lapsed.
const SessionExpiredMessage = "Your editing session expired, please re-open the record"

type StatusResponse struct {
	IsLocked  bool           `json:"is_locked"`
	HolderID  string         `json:"holder_id,omitempty"`
	LockType  string         `json:"lock_type,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Locks     []LockResponse `json:"locks"`
}

// NewStatusResponse renders the lock status of a record.
func NewStatusResponse(s entity.LockStatus, now time.Time) StatusResponse {
	resp := StatusResponse{IsLocked: s.IsLocked, Locks: []LockResponse{}}
	if !s.IsLocked {
		return resp
	}
	expires := s.ExpiresAt.UTC()
	resp.HolderID = s.HolderID
	resp.LockType = string(s.LockType)
	resp.ExpiresAt = &expires
	for _, l := range s.Locks {
		resp.Locks = append(resp.Locks, NewLockResponse(l, now))
	}
	return resp
}

// LockStatus converts the response back into an entity.
func (r StatusResponse) LockStatus() entity.LockStatus {
	s := entity.LockStatus{
		IsLocked: r.IsLocked,
		HolderID: r.HolderID,
		LockType: entity.LockType(r.LockType),
	}
	if r.ExpiresAt != nil {
		s.ExpiresAt = *r.ExpiresAt
	}
	for _, l := range r.Locks {
		s.Locks = append(s.Locks, l.Lock())
	}
	return s
}

// ToGRPCLock renders a lock for the gRPC API.
func ToGRPCLock(l entity.Lock, now time.Time) *types.LockResponse {
	return &types.LockResponse{
		RecordId:         l.RecordID,
		HolderId:         l.HolderID,
		LockType:         string(l.LockType),
		ExpiresAtUnixMs:  l.ExpiresAt.UnixMilli(),
		ExpiresInSeconds: int64(l.ExpiresIn(now) / time.Second),
		Version:          l.Version,
	}
}

// ToGRPCStatus renders a lock status for the gRPC API.
func ToGRPCStatus(s entity.LockStatus, now time.Time) *types.StatusResponse {
	resp := &types.StatusResponse{IsLocked: s.IsLocked}
	if !s.IsLocked {
		return resp
	}
	resp.HolderId = s.HolderID
	resp.LockType = string(s.LockType)
	resp.ExpiresAtUnixMs = s.ExpiresAt.UnixMilli()
	for _, l := range s.Locks {
		resp.Locks = append(resp.Locks, ToGRPCLock(l, now))
	}
	return resp
}

type ErrorResponse struct {
	Error string `json:"error"`
}
