package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

const (
	keyPrefix = "records:lock"
	seqKey    = "records:lock:seq"
)

const (
	codeGranted   = 1
	codeConflict  = 0
	codeNotFound  = -1
	codeForbidden = -2
	codeStale     = -3
)

// KEYS[1] lock hash, KEYS[2] version counter.
// ARGV holder, now_ms, expires_ms, lease_ms.
var acquireScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "holder", "version", "acquired_at", "expires_at")
if cur[1] and tonumber(cur[4]) > tonumber(ARGV[2]) then
	if cur[1] ~= ARGV[1] then
		return {0, cur[1], cur[2], cur[3], cur[4]}
	end
	local version = redis.call("INCR", KEYS[2])
	redis.call("HSET", KEYS[1], "version", version, "expires_at", ARGV[3])
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
	return {1, cur[1], tostring(version), cur[3], ARGV[3]}
end
local version = redis.call("INCR", KEYS[2])
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "holder", ARGV[1], "version", version, "acquired_at", ARGV[2], "expires_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {1, ARGV[1], tostring(version), ARGV[2], ARGV[3]}
`)

// KEYS[1] lock hash, KEYS[2] version counter.
// ARGV holder, now_ms, expires_ms, lease_ms, expected version (0 skips the check).
var renewScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "holder", "version", "acquired_at", "expires_at")
if not cur[1] then
	return {-1}
end
if tonumber(cur[4]) <= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1])
	return {-1}
end
if cur[1] ~= ARGV[1] then
	return {-2}
end
if ARGV[5] ~= "0" and cur[2] ~= ARGV[5] then
	return {-3}
end
local version = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "version", version, "expires_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {1, cur[1], tostring(version), cur[3], ARGV[3]}
`)

// KEYS[1] lock hash. ARGV holder, now_ms.
var releaseScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "holder", "expires_at")
if not cur[1] then
	return 0
end
if tonumber(cur[2]) <= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1])
	return 0
end
if cur[1] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each lock in its own hash and mutates it only through
// Lua scripts, so Redis serializes all operations on one key. Key TTLs
// follow the lease, so Redis itself does the sweeping.
type RedisStore struct {
	client *redis.Client
	opts   options
}

// NewRedisStore constructs a Redis-backed lock store.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: buildOptions(opts)}
}

func redisKey(recordID string, lockType entity.LockType) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, recordID, lockType)
}

// Acquire grants or refreshes the lock for holderID.
func (s *RedisStore) Acquire(ctx context.Context, recordID string, lockType entity.LockType, holderID string) (entity.Lock, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return entity.Lock{}, err
	}

	now := s.opts.now()
	res, err := acquireScript.Run(ctx, s.client,
		[]string{redisKey(recordID, lockType), seqKey},
		holderID, now.UnixMilli(), now.Add(s.opts.lease).UnixMilli(), s.opts.lease.Milliseconds(),
	).Slice()
	if err != nil {
		return entity.Lock{}, fmt.Errorf("acquire %s lock on %s: %w", lockType, recordID, err)
	}

	l, code, err := decodeLock(recordID, lockType, res)
	if err != nil {
		return entity.Lock{}, err
	}
	if code == codeConflict {
		return entity.Lock{}, &ConflictError{LockedBy: l.HolderID, LockType: lockType, ExpiresAt: l.ExpiresAt}
	}
	return l, nil
}

// Renew extends a live lock owned by holderID.
func (s *RedisStore) Renew(ctx context.Context, recordID string, lockType entity.LockType, holderID string, version uint64) (entity.Lock, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return entity.Lock{}, err
	}

	now := s.opts.now()
	res, err := renewScript.Run(ctx, s.client,
		[]string{redisKey(recordID, lockType), seqKey},
		holderID, now.UnixMilli(), now.Add(s.opts.lease).UnixMilli(), s.opts.lease.Milliseconds(),
		strconv.FormatUint(version, 10),
	).Slice()
	if err != nil {
		return entity.Lock{}, fmt.Errorf("renew %s lock on %s: %w", lockType, recordID, err)
	}

	l, code, err := decodeLock(recordID, lockType, res)
	if err != nil {
		return entity.Lock{}, err
	}
	switch code {
	case codeNotFound:
		return entity.Lock{}, ErrLockNotFound
	case codeForbidden:
		return entity.Lock{}, ErrForbidden
	case codeStale:
		return entity.Lock{}, ErrStaleVersion
	}
	return l, nil
}

// Release removes a live lock owned by holderID.
func (s *RedisStore) Release(ctx context.Context, recordID string, lockType entity.LockType, holderID string) (bool, error) {
	if err := validateKey(recordID, lockType, holderID); err != nil {
		return false, err
	}

	n, err := releaseScript.Run(ctx, s.client,
		[]string{redisKey(recordID, lockType)},
		holderID, s.opts.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s lock on %s: %w", lockType, recordID, err)
	}
	return n == 1, nil
}

// Status reports live locks on recordID.
func (s *RedisStore) Status(ctx context.Context, recordID string, lockType entity.LockType) (entity.LockStatus, error) {
	if recordID == "" || (lockType != "" && !lockType.Valid()) {
		return entity.LockStatus{}, ErrInvalidKey
	}

	types := typesFor(lockType)
	cmds := make([]*redis.SliceCmd, len(types))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, t := range types {
			cmds[i] = pipe.HMGet(ctx, redisKey(recordID, t), "holder", "version", "acquired_at", "expires_at")
		}
		return nil
	})
	if err != nil {
		return entity.LockStatus{}, fmt.Errorf("lock status for %s: %w", recordID, err)
	}

	now := s.opts.now()
	var live []entity.Lock
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 4 || vals[0] == nil {
			continue
		}
		l, err := lockFromFields(recordID, types[i], vals)
		if err != nil {
			s.opts.logger.WithError(err).WithField("key", redisKey(recordID, types[i])).Warn("skipping malformed lock entry")
			continue
		}
		if !l.Expired(now) {
			live = append(live, l)
		}
	}
	return entity.StatusFromLocks(live), nil
}

// Sweep is a no-op: lock keys carry a TTL equal to the lease.
func (s *RedisStore) Sweep(_ context.Context) ([]entity.Lock, error) {
	return nil, nil
}

func decodeLock(recordID string, lockType entity.LockType, res []interface{}) (entity.Lock, int64, error) {
	if len(res) == 0 {
		return entity.Lock{}, 0, fmt.Errorf("empty script reply")
	}
	code, ok := res[0].(int64)
	if !ok {
		return entity.Lock{}, 0, fmt.Errorf("unexpected script status %T", res[0])
	}
	if len(res) == 1 {
		return entity.Lock{}, code, nil
	}
	if len(res) != 5 {
		return entity.Lock{}, 0, fmt.Errorf("unexpected script reply length %d", len(res))
	}
	l, err := lockFromFields(recordID, lockType, res[1:])
	return l, code, err
}

func lockFromFields(recordID string, lockType entity.LockType, vals []interface{}) (entity.Lock, error) {
	fields := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return entity.Lock{}, fmt.Errorf("lock field %d has type %T", i, v)
		}
		fields[i] = s
	}

	version, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return entity.Lock{}, fmt.Errorf("parse lock version: %w", err)
	}
	acquired, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return entity.Lock{}, fmt.Errorf("parse lock acquired_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return entity.Lock{}, fmt.Errorf("parse lock expires_at: %w", err)
	}

	return entity.Lock{
		RecordID:   recordID,
		LockType:   lockType,
		HolderID:   fields[0],
		AcquiredAt: time.UnixMilli(acquired),
		ExpiresAt:  time.UnixMilli(expires),
		Version:    version,
	}, nil
}
