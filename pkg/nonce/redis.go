package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript performs the exists/owner/unconsumed/unexpired check and the
// consume mark as one atomic operation inside Redis, so two gate instances
// verifying writes under the same agent identity cannot both spend a nonce.
// KEYS[1] = nonce key
// ARGV[1] = agent id
// ARGV[2] = now (unix ms)
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local agent = ARGV[1]
local now = tonumber(ARGV[2])

local state = redis.call("HMGET", key, "agent_id", "expires_at", "consumed")
local owner = state[1]
local expires_at = tonumber(state[2])
local consumed = state[3]

if not owner or owner ~= agent then
    return 0
end
if consumed == "1" then
    return 0
end
if not expires_at or now >= expires_at then
    return 0
end

redis.call("HSET", key, "consumed", "1", "consumed_at", now)
return 1
`)

// RedisStore persists nonces in Redis with a per-key TTL. Expired entries
// evict themselves, so PurgeExpired is a no-op.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func nonceKey(value string) string {
	return fmt.Sprintf("nonce:%s", value)
}

func (s *RedisStore) Issue(ctx context.Context, agentID string) (*Nonce, error) {
	value, err := NewValue()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	n := &Nonce{
		Value:     value,
		AgentID:   agentID,
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	}

	key := nonceKey(value)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"agent_id", agentID,
		"issued_at", now.UnixMilli(),
		"expires_at", n.ExpiresAt.UnixMilli(),
		"consumed", "0",
	)
	// Keep the key a little past logical expiry so late consumers see a
	// definite "expired" rather than "unknown".
	pipe.PExpire(ctx, key, TTL+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("nonce: redis issue: %w", err)
	}
	return n, nil
}

func (s *RedisStore) TryConsume(ctx context.Context, agentID, value string, now time.Time) (bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{nonceKey(value)}, agentID, now.UnixMilli()).Result()
	if err != nil {
		return false, fmt.Errorf("nonce: redis consume: %w", err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("nonce: unexpected script result %T", res)
	}
	return allowed == 1, nil
}

func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
