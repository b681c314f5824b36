package dto

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	types "github.com/vibast-solutions/ms-go-record-locks/app/types"
)

var (
	ErrMissingRecordID          = errors.New("record id is required")
	ErrMissingLockType          = errors.New("lock_type is required")
	ErrInvalidLockType          = errors.New("lock_type must be one of EDIT, STATUS, ASSIGN, REMARK")
	ErrInvalidTargetStatus      = errors.New("target_status must be one of WAITING, IN_PROGRESS, COMPLETE, ISSUE, CANCEL")
	ErrTargetRequiresStatusLock = errors.New("target_status is only valid with lock_type STATUS")
	ErrMissingStatus            = errors.New("status is required")
)

type LockRequest struct {
	RecordID     string `param:"id" json:"-"`
	LockType     string `json:"lock_type" query:"lock_type"`
	TargetStatus string `json:"target_status"`
	Version      uint64 `json:"version"`

	lockType entity.LockType
	target   entity.RecordStatus
}

// LockRequestFromEchoContext binds and normalizes a lock request from Echo.
func LockRequestFromEchoContext(ctx echo.Context) (LockRequest, error) {
	var req LockRequest
	if err := ctx.Bind(&req); err != nil {
		return LockRequest{}, err
	}
	if req.RecordID == "" {
		req.RecordID = ctx.Param("id")
	}
	if req.LockType == "" {
		req.LockType = ctx.QueryParam("lock_type")
	}
	req.normalize()
	return req, nil
}

// LockRequestFromGRPC converts and normalizes a gRPC request.
func LockRequestFromGRPC(req *types.LockRequest) LockRequest {
	dto := LockRequest{
		RecordID:     req.GetRecordId(),
		LockType:     req.GetLockType(),
		TargetStatus: req.GetTargetStatus(),
		Version:      req.GetVersion(),
	}
	dto.normalize()
	return dto
}

// Validate checks a request that must name a lock type.
func (r *LockRequest) Validate() error {
	if r.LockType == "" {
		if r.RecordID == "" {
			return ErrMissingRecordID
		}
		return ErrMissingLockType
	}
	return r.ValidateOptionalType()
}

// ValidateOptionalType checks a request where an empty lock type means every type.
func (r *LockRequest) ValidateOptionalType() error {
	if r.RecordID == "" {
		return ErrMissingRecordID
	}
	if r.LockType != "" {
		t, err := entity.ParseLockType(r.LockType)
		if err != nil {
			return ErrInvalidLockType
		}
		r.lockType = t
	}
	if r.TargetStatus != "" {
		if r.lockType != entity.LockTypeStatus {
			return ErrTargetRequiresStatusLock
		}
		s, err := entity.ParseRecordStatus(r.TargetStatus)
		if err != nil {
			return ErrInvalidTargetStatus
		}
		r.target = s
	}
	return nil
}

// Type returns the validated lock type, empty when none was given.
func (r *LockRequest) Type() entity.LockType {
	return r.lockType
}

// Target returns the validated target status, empty when none was given.
func (r *LockRequest) Target() entity.RecordStatus {
	return r.target
}

func (r *LockRequest) normalize() {
	r.RecordID = strings.TrimSpace(r.RecordID)
	r.LockType = strings.TrimSpace(r.LockType)
	r.TargetStatus = strings.TrimSpace(r.TargetStatus)
}

type StatusChangeRequest struct {
	RecordID string `param:"id" json:"-"`
	Status   string `json:"status"`

	status entity.RecordStatus
}

// StatusChangeRequestFromEchoContext binds and normalizes a status change from Echo.
func StatusChangeRequestFromEchoContext(ctx echo.Context) (StatusChangeRequest, error) {
	var req StatusChangeRequest
	if err := ctx.Bind(&req); err != nil {
		return StatusChangeRequest{}, err
	}
	if req.RecordID == "" {
		req.RecordID = ctx.Param("id")
	}
	req.normalize()
	return req, nil
}

// StatusChangeRequestFromGRPC converts and normalizes a gRPC request.
func StatusChangeRequestFromGRPC(req *types.ChangeStatusRequest) StatusChangeRequest {
	dto := StatusChangeRequest{
		RecordID: req.GetRecordId(),
		Status:   req.GetStatus(),
	}
	dto.normalize()
	return dto
}

// Validate checks required fields and the status name.
func (r *StatusChangeRequest) Validate() error {
	if r.RecordID == "" {
		return ErrMissingRecordID
	}
	if r.Status == "" {
		return ErrMissingStatus
	}
	s, err := entity.ParseRecordStatus(r.Status)
	if err != nil {
		return ErrInvalidTargetStatus
	}
	r.status = s
	return nil
}

// Target returns the validated status.
func (r *StatusChangeRequest) Target() entity.RecordStatus {
	return r.status
}

func (r *StatusChangeRequest) normalize() {
	r.RecordID = strings.TrimSpace(r.RecordID)
	r.Status = strings.TrimSpace(r.Status)
}
