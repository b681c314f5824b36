package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

const defaultHistoryLimit = 50

type LockController struct {
	lockService *service.LockService
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewLockController constructs the HTTP lock controller.
func NewLockController(lockService *service.LockService, logger logrus.FieldLogger) *LockController {
	return &LockController{lockService: lockService, logger: logger, now: time.Now}
}

// Acquire grants a lock on a record, validating the target status for STATUS locks.
func (c *LockController) Acquire(ctx echo.Context) error {
	req, err := dto.LockRequestFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	var l entity.Lock
	if req.Target() != "" {
		l, err = c.lockService.AcquireStatusLock(ctx.Request().Context(), req.RecordID, req.Target())
	} else {
		l, err = c.lockService.AcquireLock(ctx.Request().Context(), req.RecordID, req.Type())
	}
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewLockResponse(l, c.now()))
}

// Renew extends the caller's lease.
func (c *LockController) Renew(ctx echo.Context) error {
	req, err := dto.LockRequestFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	l, err := c.lockService.RenewLock(ctx.Request().Context(), req.RecordID, req.Type(), req.Version)
	if err != nil {
		return c.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dto.NewLockResponse(l, c.now()))
}

// Release drops the caller's lock. It answers 200 even when nothing was held.
func (c *LockController) Release(ctx echo.Context) error {
	req, err := dto.LockRequestFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
	}
	if err := req.ValidateOptionalType(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	released, err := c.lockService.ReleaseLock(ctx.Request().Context(), req.RecordID, req.Type())
	if err != nil {
		if errors.Is(err, service.ErrMissingHolder) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: err.Error()})
		}
		c.logger.WithError(err).WithField("record_id", req.RecordID).Warn("release failed")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"released": released})
}

// Status reports the locks currently held on a record.
func (c *LockController) Status(ctx echo.Context) error {
	req, err := dto.LockRequestFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
	}
	if err := req.ValidateOptionalType(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	status, err := c.lockService.LockStatus(ctx.Request().Context(), req.RecordID, req.Type())
	if err != nil {
		return c.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dto.NewStatusResponse(status, c.now()))
}

// ChangeStatus moves a record to a new status under the caller's STATUS lock.
func (c *LockController) ChangeStatus(ctx echo.Context) error {
	req, err := dto.StatusChangeRequestFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	rec, err := c.lockService.ChangeStatus(ctx.Request().Context(), req.RecordID, req.Target())
	if err != nil {
		return c.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"id": rec.ID, "status": string(rec.Status)})
}

// History lists recent lock events for a record.
func (c *LockController) History(ctx echo.Context) error {
	limit := defaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be between 1 and 500"})
		}
		limit = n
	}

	events, err := c.lockService.History(ctx.Request().Context(), ctx.Param("id"), limit)
	if err != nil {
		c.logger.WithError(err).Error("load lock history failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to load lock history"})
	}

	out := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]interface{}{
			"event_id":    e.ID,
			"lock_type":   e.LockType,
			"holder_id":   e.HolderID,
			"action":      e.Action,
			"detail":      e.Detail,
			"occurred_at": e.OccurredAt.UTC(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"events": out})
}

// renderError maps service and store errors onto the wire contract.
func (c *LockController) renderError(ctx echo.Context, err error) error {
	var (
		conflict *lock.ConflictError
		required *service.LockRequiredError
		invalid  *transition.InvalidTransitionError
	)

	switch {
	case errors.As(err, &conflict):
		return ctx.JSON(http.StatusLocked, dto.NewConflictResponse(conflict))
	case errors.As(err, &required):
		if required.Current.IsLocked {
			return ctx.JSON(http.StatusLocked, dto.NewConflictResponse(&lock.ConflictError{
				LockedBy:  required.Current.HolderID,
				LockType:  required.LockType,
				ExpiresAt: required.Current.ExpiresAt,
			}))
		}
		return ctx.JSON(http.StatusLocked, dto.ConflictResponse{Error: dto.ConflictError{
			Message: required.Error(),
			Detail:  dto.ConflictDetail{LockType: string(required.LockType)},
		}})
	case errors.As(err, &invalid):
		return ctx.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   invalid.Error(),
			"from":    invalid.From,
			"to":      invalid.To,
			"allowed": transition.Allowed(invalid.From),
		})
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, lock.ErrLockNotFound):
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, lock.ErrForbidden):
		return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: dto.SessionExpiredMessage})
	case errors.Is(err, lock.ErrStaleVersion):
		return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, lock.ErrInvalidKey):
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrMissingHolder):
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: err.Error()})
	}

	c.logger.WithError(err).Error("lock request failed")
	return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "lock service unavailable"})
}
