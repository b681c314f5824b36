package lock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

const shardCount = 64

type lockKey struct {
	recordID string
	lockType entity.LockType
}

type shard struct {
	mu    sync.Mutex
	locks map[lockKey]*entity.Lock
}

// MemoryStore keeps locks in process memory. Keys are spread over
// independently locked shards so unrelated records never contend.
// A restart frees every lock.
type MemoryStore struct {
	opts   options
	shards [shardCount]*shard
	seq    atomic.Uint64
}

// NewMemoryStore constructs an in-process lock store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{opts: buildOptions(opts)}
	for i := range s.shards {
		s.shards[i] = &shard{locks: make(map[lockKey]*entity.Lock)}
	}
	return s
}

func (s *MemoryStore) shardFor(k lockKey) *shard {
	h := xxhash.Sum64String(k.recordID + "\x00" + string(k.lockType))
	return s.shards[h%shardCount]
}

// Acquire grants or refreshes the lock for holderID.
func (s *MemoryStore) Acquire(_ context.Context, recordID string, lockType entity.LockType, holderID string) (entity.Lock, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return entity.Lock{}, err
	}

	k := lockKey{recordID: recordID, lockType: lockType}
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.opts.now()
	if cur, ok := sh.locks[k]; ok && !cur.Expired(now) {
		if cur.HolderID != holderID {
			return entity.Lock{}, &ConflictError{LockedBy: cur.HolderID, LockType: cur.LockType, ExpiresAt: cur.ExpiresAt}
		}
		cur.ExpiresAt = now.Add(s.opts.lease)
		cur.Version = s.seq.Add(1)
		return *cur, nil
	}

	l := &entity.Lock{
		RecordID:   recordID,
		LockType:   lockType,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.opts.lease),
		Version:    s.seq.Add(1),
	}
	sh.locks[k] = l
	return *l, nil
}

// Renew extends a live lock owned by holderID.
func (s *MemoryStore) Renew(_ context.Context, recordID string, lockType entity.LockType, holderID string, version uint64) (entity.Lock, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return entity.Lock{}, err
	}

	k := lockKey{recordID: recordID, lockType: lockType}
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.opts.now()
	cur, ok := sh.locks[k]
	if !ok {
		return entity.Lock{}, ErrLockNotFound
	}
	if cur.Expired(now) {
		delete(sh.locks, k)
		return entity.Lock{}, ErrLockNotFound
	}
	if cur.HolderID != holderID {
		return entity.Lock{}, ErrForbidden
	}
	if version != 0 && version != cur.Version {
		return entity.Lock{}, ErrStaleVersion
	}

	cur.ExpiresAt = now.Add(s.opts.lease)
	cur.Version = s.seq.Add(1)
	return *cur, nil
}

// Release removes a live lock owned by holderID.
func (s *MemoryStore) Release(_ context.Context, recordID string, lockType entity.LockType, holderID string) (bool, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return false, err
	}

	k := lockKey{recordID: recordID, lockType: lockType}
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.locks[k]
	if !ok {
		return false, nil
	}
	if cur.Expired(s.opts.now()) {
		delete(sh.locks, k)
		return false, nil
	}
	if cur.HolderID != holderID {
		return false, nil
	}
	delete(sh.locks, k)
	return true, nil
}

// Status reports live locks on recordID.
func (s *MemoryStore) Status(_ context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error) {
	if recordID == "" || (lockType != "" && !lockType.Valid()) {
		return entity.LockStatus{}, ErrInvalidKey
	}

	var live []entity.Lock
	for _, t := range typesFor(lockType) {
		k := lockKey{recordID: recordID, lockType: t}
		sh := s.shardFor(k)
		sh.mu.Lock()
		if cur, ok := sh.locks[k]; ok {
			if cur.Expired(s.opts.now()) {
				delete(sh.locks, k)
			} else {
				live = append(live, *cur)
			}
		}
		sh.mu.Unlock()
	}
	return entity.StatusFromLocks(live), nil
}

// Sweep drops every expired lock.
func (s *MemoryStore) Sweep(_ context.Context) ([]entity.Lock, error) {
	var expired []entity.Lock
	for _, sh := range s.shards {
		sh.mu.Lock()
		now := s.opts.now()
		for k, l := range sh.locks {
			if l.Expired(now) {
				expired = append(expired, *l)
				delete(sh.locks, k)
			}
		}
		sh.mu.Unlock()
	}
	return expired, nil
}
