package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/redis/go-redis/v9"
)

// compareAndSwapLua replaces the stored entry only if it is byte-for-byte the
// one the caller read.
// KEYS[1] = entry key
// ARGV[1] = expected encoded entry
// ARGV[2] = replacement encoded entry, or "" to delete
// ARGV[3] = replacement TTL in milliseconds
//
// Returns 1 when swapped, 0 when the entry changed or vanished.
var compareAndSwapLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur or cur ~= ARGV[1] then
  return 0
end
if ARGV[2] == '' then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], ARGV[2], 'PX', tonumber(ARGV[3]))
end
return 1
`)

// VerificationStore keeps one JSON-encoded pending OTP per identity.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewVerificationStore(rdb redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "authotp"
	}
	return &VerificationStore{redis: rdb, prefix: prefix, now: time.Now}
}

func (s *VerificationStore) key(identityID string) string {
	return s.prefix + ":otp:" + identityID
}

func (s *VerificationStore) Put(ctx context.Context, v *domain.PendingVerification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := ttlUntil(s.now(), time.Unix(v.ExpiresAt, 0))
	if err := s.redis.Set(ctx, s.key(v.IdentityID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set otp: %w", err)
	}
	return nil
}

func (s *VerificationStore) Get(ctx context.Context, identityID string) (*domain.PendingVerification, error) {
	data, err := s.redis.Get(ctx, s.key(identityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get otp: %w", err)
	}
	var v domain.PendingVerification
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode otp entry: %w", err)
	}
	return &v, nil
}

func (s *VerificationStore) Delete(ctx context.Context, identityID string) error {
	if err := s.redis.Del(ctx, s.key(identityID)).Err(); err != nil {
		return fmt.Errorf("redis del otp: %w", err)
	}
	return nil
}

// CompareAndSwap relies on json.Marshal being deterministic for the entry
// struct, so re-encoding old reproduces the stored bytes.
func (s *VerificationStore) CompareAndSwap(ctx context.Context, old, next *domain.PendingVerification) (bool, error) {
	expected, err := json.Marshal(old)
	if err != nil {
		return false, err
	}
	var replacement []byte
	var ttlMs int64
	if next != nil {
		if replacement, err = json.Marshal(next); err != nil {
			return false, err
		}
		ttlMs = ttlUntil(s.now(), time.Unix(next.ExpiresAt, 0)).Milliseconds()
	}
	n, err := compareAndSwapLua.Run(ctx, s.redis,
		[]string{s.key(old.IdentityID)},
		string(expected),
		string(replacement),
		ttlMs,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas otp: %w", err)
	}
	return n == 1, nil
}
