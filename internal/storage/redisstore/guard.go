package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"program_catalog/internal/domain"
)

// ErrLockLost is returned by release when the lock expired or was taken over
// before the holder released it.
var ErrLockLost = errors.New("run lock lost before release")

// Deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RunGuard struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRunGuard(rdb *redis.Client, prefix string, ttl time.Duration) *RunGuard {
	return &RunGuard{
		rdb: rdb,
		key: prefix + ":sync:lock",
		ttl: ttl,
	}
}

// Acquire takes the run lock. The TTL bounds how long a crashed holder can
// block later runs.
func (g *RunGuard) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := g.rdb.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire run lock: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, g.rdb, []string{g.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
	return release, nil
}
