package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// advanceEpochLua stores ARGV[1] (unix millis) unless a later epoch is
// already recorded.
// KEYS[1] = epoch key
// ARGV[1] = epoch in unix milliseconds
// ARGV[2] = TTL in milliseconds
var advanceEpochLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', tonumber(ARGV[2]))
return 1
`)

// RevocationStore keeps revoked token IDs and identity revocation epochs as
// keys that expire together with the tokens they reject.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRevocationStore(rdb redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "authotp"
	}
	return &RevocationStore{redis: rdb, prefix: prefix, now: time.Now}
}

func (s *RevocationStore) tokenKey(tokenID string) string {
	return s.prefix + ":revoked:" + tokenID
}

func (s *RevocationStore) epochKey(identityID string) string {
	return s.prefix + ":epoch:" + identityID
}

func (s *RevocationStore) RevokeToken(ctx context.Context, tokenID string, until time.Time) error {
	if err := s.redis.Set(ctx, s.tokenKey(tokenID), "1", ttlUntil(s.now(), until)).Err(); err != nil {
		return fmt.Errorf("redis revoke token: %w", err)
	}
	return nil
}

func (s *RevocationStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis lookup revocation: %w", err)
	}
	return n > 0, nil
}

func (s *RevocationStore) RevokeIdentity(ctx context.Context, identityID string, at, until time.Time) error {
	err := advanceEpochLua.Run(ctx, s.redis,
		[]string{s.epochKey(identityID)},
		at.UnixMilli(),
		ttlUntil(s.now(), until).Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis revoke identity: %w", err)
	}
	return nil
}

func (s *RevocationStore) IdentityRevokedAt(ctx context.Context, identityID string) (time.Time, bool, error) {
	raw, err := s.redis.Get(ctx, s.epochKey(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis lookup epoch: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode epoch: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}
