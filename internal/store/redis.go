package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL creates the counter at 1 with a TTL, or increments it without
// touching the existing TTL. A Lua script keeps create-or-increment a single
// atomic round trip; a read-then-write sequence would undercount under
// concurrency.
var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisStore implements Store on a shared Redis instance so that limits and
// dedup keys hold across processes. The client is injected; connection
// lifecycle belongs to the caller.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := incrWithTTL.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return count, nil
}

// TTL implements Store. Redis reports -1 for "no expiry" and -2 for
// "missing"; both collapse to 0 per the contract.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return n > 0, nil
}

// SetIfAbsent implements Store, backed by SETNX with expiry.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return ok, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable("del", key, err)
	}
	return n > 0, nil
}
