package audit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "grievance/internal/errors"
)

const keyPrefix = "grievance:audit:"

// resolveScript sets the result only while the key is absent or pending.
var resolveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
return 1
`)

// RedisRegistry shares audit results between replicas so the provider
// webhook may land on any of them. Entries expire after ttl.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry connects using a redis:// URL and pings the server.
func NewRedisRegistry(ctx context.Context, redisURL string, ttl time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperrors.NewConfigError("REDIS_URL", err.Error())
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewCollaboratorError("redis", "ping", err)
	}
	return newRedisRegistry(client, ttl), nil
}

func newRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

func (r *RedisRegistry) Begin(ctx context.Context, callID string) error {
	if err := r.client.SetNX(ctx, keyPrefix+callID, StatusPending, r.ttl).Err(); err != nil {
		return apperrors.NewCollaboratorError("redis", "begin audit", err)
	}
	return nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, callID, result string) (bool, error) {
	n, err := resolveScript.Run(ctx, r.client,
		[]string{keyPrefix + callID},
		result, StatusPending, int(r.ttl.Seconds())).Int()
	if err != nil {
		return false, apperrors.NewCollaboratorError("redis", "resolve audit", err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Status(ctx context.Context, callID string) (string, bool, error) {
	s, err := r.client.Get(ctx, keyPrefix+callID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewCollaboratorError("redis", "audit status", err)
	}
	return s, true, nil
}

// Close releases the connection pool.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
