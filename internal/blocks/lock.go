package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises writers on one room across processes.
type Locker interface {
	Lock(ctx context.Context, roomID string) (unlock func(), err error)
}

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SETNX lock with a TTL and a bounded number of retries.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewRedisLocker creates a locker. Non-positive arguments fall back to
// 5s TTL, 10 retries and 50ms backoff.
func NewRedisLocker(client *redis.Client, ttl time.Duration, retries int, backoff time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if retries <= 0 {
		retries = 10
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retries: retries, backoff: backoff}
}

func lockKey(roomID string) string {
	return fmt.Sprintf("calendar:room:%s", roomID)
}

// Lock acquires the room lock or returns ErrRoomBusy once retries run out.
func (l *RedisLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	key := lockKey(roomID)
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire room lock: %w", err)
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, ErrRoomBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}

	return func() {
		// Release even if the request context is already cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
