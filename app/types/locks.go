package types

type LockRequest struct {
	RecordId     string `json:"record_id"`
	LockType     string `json:"lock_type"`
	TargetStatus string `json:"target_status,omitempty"`
	Version      uint64 `json:"version,omitempty"`
}

func (r *LockRequest) GetRecordId() string {
	if r == nil {
		return ""
	}
	return r.RecordId
}

func (r *LockRequest) GetLockType() string {
	if r == nil {
		return ""
	}
	return r.LockType
}

func (r *LockRequest) GetTargetStatus() string {
	if r == nil {
		return ""
	}
	return r.TargetStatus
}

func (r *LockRequest) GetVersion() uint64 {
	if r == nil {
		return 0
	}
	return r.Version
}

type LockResponse struct {
	RecordId         string `json:"record_id"`
	HolderId         string `json:"holder_id"`
	LockType         string `json:"lock_type"`
	ExpiresAtUnixMs  int64  `json:"expires_at_unix_ms"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
	Version          uint64 `json:"version"`
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}

type StatusResponse struct {
	IsLocked        bool            `json:"is_locked"`
	HolderId        string          `json:"holder_id,omitempty"`
	LockType        string          `json:"lock_type,omitempty"`
	ExpiresAtUnixMs int64           `json:"expires_at_unix_ms,omitempty"`
	Locks           []*LockResponse `json:"locks,omitempty"`
}

type ChangeStatusRequest struct {
	RecordId string `json:"record_id"`
	Status   string `json:"status"`
}

func (r *ChangeStatusRequest) GetRecordId() string {
	if r == nil {
		return ""
	}
	return r.RecordId
}

func (r *ChangeStatusRequest) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

type ChangeStatusResponse struct {
	RecordId string `json:"record_id"`
	Status   string `json:"status"`
}
