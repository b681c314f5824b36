package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/app/transition"
)

var (
	ErrUnauthorized = errors.New("lock service rejected the credentials")
	ErrTransport    = errors.New("lock service request failed")
)

// HTTPBackend calls the REST lock API with a bearer token.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend constructs a REST backend. A nil client uses a 10s timeout.
func NewHTTPBackend(baseURL, token string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type lockBody struct {
	LockType     string `json:"lock_type"`
	TargetStatus string `json:"target_status,omitempty"`
	Version      uint64 `json:"version,omitempty"`
}

func (b *HTTPBackend) Acquire(ctx context.Context, recordID string, lockType entity.LockType, target entity.RecordStatus) (entity.Lock, error) {
	var resp dto.LockResponse
	err := b.do(ctx, http.MethodPost, b.lockPath(recordID, ""), lockBody{LockType: string(lockType), TargetStatus: string(target)}, &resp, service.ErrRecordNotFound)
	if err != nil {
		return entity.Lock{}, err
	}
	return resp.Lock(), nil
}

func (b *HTTPBackend) Renew(ctx context.Context, recordID string, lockType entity.LockType, version uint64) (entity.Lock, error) {
	var resp dto.LockResponse
	err := b.do(ctx, http.MethodPut, b.lockPath(recordID, ""), lockBody{LockType: string(lockType), Version: version}, &resp, lock.ErrLockNotFound)
	if err != nil {
		return entity.Lock{}, err
	}
	return resp.Lock(), nil
}

func (b *HTTPBackend) Release(ctx context.Context, recordID string, lockType entity.LockType) error {
	return b.do(ctx, http.MethodDelete, b.lockPath(recordID, lockType), nil, nil, lock.ErrLockNotFound)
}

func (b *HTTPBackend) Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error) {
	var resp dto.StatusResponse
	path := "/records/" + url.PathEscape(recordID) + "/lock/status"
	if lockType != "" {
		path += "?lock_type=" + url.QueryEscape(string(lockType))
	}
	if err := b.do(ctx, http.MethodGet, path, nil, &resp, service.ErrRecordNotFound); err != nil {
		return entity.LockStatus{}, err
	}
	return resp.LockStatus(), nil
}

func (b *HTTPBackend) lockPath(recordID string, lockType entity.LockType) string {
	path := "/records/" + url.PathEscape(recordID) + "/lock"
	if lockType != "" {
		path += "?lock_type=" + url.QueryEscape(string(lockType))
	}
	return path
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body interface{}, out interface{}, notFound error) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: malformed response: %v", ErrTransport, err)
		}
		return nil
	case http.StatusLocked:
		var conflict dto.ConflictResponse
		if err := json.Unmarshal(raw, &conflict); err != nil {
			return fmt.Errorf("%w: malformed conflict: %v", ErrTransport, err)
		}
		return conflict.Conflict()
	case http.StatusUnprocessableEntity:
		var invalid struct {
			From entity.RecordStatus `json:"from"`
			To   entity.RecordStatus `json:"to"`
		}
		if err := json.Unmarshal(raw, &invalid); err != nil {
			return fmt.Errorf("%w: malformed rejection: %v", ErrTransport, err)
		}
		return &transition.InvalidTransitionError{From: invalid.From, To: invalid.To}
	case http.StatusNotFound:
		return notFound
	case http.StatusForbidden:
		return lock.ErrForbidden
	case http.StatusConflict:
		return lock.ErrStaleVersion
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}

	var apiErr dto.ErrorResponse
	_ = json.Unmarshal(raw, &apiErr)
	return fmt.Errorf("%w: %s %s: status %d %s", ErrTransport, method, path, resp.StatusCode, apiErr.Error)
}
