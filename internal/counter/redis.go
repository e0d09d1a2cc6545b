package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/models"

	"github.com/redis/go-redis/v9"
)

// incrementScript creates the key with its expiry in the same round trip as
// the first increment, so concurrent callers can never leave a counter
// without a TTL.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisBackend stores counters in Redis. Every operation runs under its own
// timeout so a slow Redis costs at most that much latency per gate.
type RedisBackend struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

// NewRedisBackend connects using a redis:// or rediss:// URL. A non-empty
// token overrides any password in the URL. An unreachable server is logged
// rather than returned: gates fail open per operation, so the process can
// start and recover when Redis comes back.
func NewRedisBackend(ctx context.Context, cfg models.RedisConfig, logger *slog.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Token != "" {
		opts.Password = cfg.Token
	}

	b := NewRedisBackendFromClient(redis.NewClient(opts), cfg.KeyPrefix, cfg.OperationTimeout)

	if err := b.Ping(ctx); err != nil {
		logger.Warn("Redis not reachable at startup; admission checks will fail open until it is",
			"addr", opts.Addr,
			"error", err,
		)
	}

	return b, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisBackend {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &RedisBackend{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
	}
}

func (b *RedisBackend) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	n, err := incrementScript.Run(ctx, b.client, []string{b.prefix + key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return n, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	v, err := b.client.Get(ctx, b.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, b.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
