package blackboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the tank lock.
var ErrLockHeld = errors.New("tank lock is held by another submission")

// releaseScript deletes the lock only if it still holds our token, so an
// expired-and-reacquired lock is never released by its previous owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TankLock is a held per-tank lock.
type TankLock struct {
	rdb   *redis.Client
	key   string
	token string
}

// AcquireTankLock takes the tank's lock for ttl without waiting.
// Returns ErrLockHeld if another holder owns it.
func (c *Client) AcquireTankLock(ctx context.Context, tank string, ttl time.Duration) (*TankLock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock TTL must be positive")
	}

	key := TankLockKey(c.instanceName, tank)
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire tank lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &TankLock{rdb: c.rdb, key: key, token: token}, nil
}

// Release frees the lock if it is still ours. Releasing an expired or already
// released lock is not an error.
func (l *TankLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release tank lock: %w", err)
	}
	return nil
}

// Key returns the Redis key of the lock.
func (l *TankLock) Key() string {
	return l.key
}
