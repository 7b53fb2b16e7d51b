package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
	keyPrefix    = "hospital-portal:lock:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock that another instance re-acquired is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is logged when the release finds another holder's token.
var ErrLockLost = errors.New("lock: lock expired before release")

// Redis is a lock shared by every portal instance pointed at the same Redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// RedisOption configures a Redis lock.
type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can keep the lock.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// WithRetryInterval sets how often a blocked Lock polls.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithLogger sets the logger for the lock.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = logger }
}

// NewRedis returns a lock backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultTTL,
		retry:  defaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock acquires key with SET NX PX, retrying until ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	rkey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, rkey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, r.client, []string{rkey}, token).Int64()
		if err != nil {
			r.logger.Error("release lock failed", slog.String("key", key), slog.String("error", err.Error()))
			return
		}
		if n == 0 {
			r.logger.Warn("release lock", slog.String("key", key), slog.String("error", ErrLockLost.Error()))
		}
	}, nil
}
