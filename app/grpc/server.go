package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
	types "github.com/vibast-solutions/ms-go-record-locks/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	types.UnimplementedLockServiceServer
	lockService *service.LockService
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewServer constructs a gRPC server handler.
func NewServer(lockService *service.LockService, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{lockService: lockService, logger: logger, now: time.Now}
}

// Acquire grants a lock, validating the target status for STATUS locks.
func (s *Server) Acquire(ctx context.Context, req *types.LockRequest) (*types.LockResponse, error) {
	msg := dto.LockRequestFromGRPC(req)
	if err := msg.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var (
		l   entity.Lock
		err error
	)
	if msg.Target() != "" {
		l, err = s.lockService.AcquireStatusLock(ctx, msg.RecordID, msg.Target())
	} else {
		l, err = s.lockService.AcquireLock(ctx, msg.RecordID, msg.Type())
	}
	if err != nil {
		return nil, s.toStatus(err)
	}
	return dto.ToGRPCLock(l, s.now()), nil
}

// Renew extends the caller's lease.
func (s *Server) Renew(ctx context.Context, req *types.LockRequest) (*types.LockResponse, error) {
	msg := dto.LockRequestFromGRPC(req)
	if err := msg.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	l, err := s.lockService.RenewLock(ctx, msg.RecordID, msg.Type(), msg.Version)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return dto.ToGRPCLock(l, s.now()), nil
}

// Release drops the caller's lock. An empty lock type releases every type.
func (s *Server) Release(ctx context.Context, req *types.LockRequest) (*types.ReleaseResponse, error) {
	msg := dto.LockRequestFromGRPC(req)
	if err := msg.ValidateOptionalType(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	released, err := s.lockService.ReleaseLock(ctx, msg.RecordID, msg.Type())
	if err != nil {
		if errors.Is(err, service.ErrMissingHolder) {
			return nil, s.toStatus(err)
		}
		s.logger.WithError(err).WithField("record_id", msg.RecordID).Warn("release failed")
	}
	return &types.ReleaseResponse{Released: released}, nil
}

// Status reports the locks held on a record.
func (s *Server) Status(ctx context.Context, req *types.LockRequest) (*types.StatusResponse, error) {
	msg := dto.LockRequestFromGRPC(req)
	if err := msg.ValidateOptionalType(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	st, err := s.lockService.LockStatus(ctx, msg.RecordID, msg.Type())
	if err != nil {
		return nil, s.toStatus(err)
	}
	return dto.ToGRPCStatus(st, s.now()), nil
}

// ChangeStatus moves a record to a new status under the caller's STATUS lock.
func (s *Server) ChangeStatus(ctx context.Context, req *types.ChangeStatusRequest) (*types.ChangeStatusResponse, error) {
	msg := dto.StatusChangeRequestFromGRPC(req)
	if err := msg.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.lockService.ChangeStatus(ctx, msg.RecordID, msg.Target())
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &types.ChangeStatusResponse{RecordId: rec.ID, Status: string(rec.Status)}, nil
}

func (s *Server) toStatus(err error) error {
	var (
		conflict *lock.ConflictError
		required *service.LockRequiredError
		invalid  *transition.InvalidTransitionError
	)

	switch {
	case errors.As(err, &conflict):
		return status.Error(codes.FailedPrecondition, dto.ConflictMessage(conflict.LockedBy, conflict.LockType))
	case errors.As(err, &required):
		return status.Error(codes.FailedPrecondition, required.Error())
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, invalid.Error())
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, lock.ErrLockNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, lock.ErrForbidden):
		return status.Error(codes.PermissionDenied, dto.SessionExpiredMessage)
	case errors.Is(err, lock.ErrStaleVersion):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, lock.ErrInvalidKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrMissingHolder):
		return status.Error(codes.Unauthenticated, err.Error())
	}

	s.logger.WithError(err).Error("lock request failed")
	return status.Error(codes.Internal, "lock service unavailable")
}
