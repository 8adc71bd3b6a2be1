package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease keeps concurrent dispatcher instances from scanning at the same
// time. It is an optimisation only: the conditional notified flag is what
// prevents double marking.
type Lease interface {
	// Acquire returns a release func when the lease was taken, or
	// acquired=false when another holder has it.
	Acquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// NoopLease always grants the lease. Used when no Redis is configured.
type NoopLease struct{}

func (NoopLease) Acquire(context.Context) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a SET NX PX lease with a per-acquisition random token.
type RedisLease struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

const DefaultLeaseKey = "approvals:dispatch:lease"

func NewRedisLease(client redis.UniversalClient, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{client: client, key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire dispatch lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release dispatch lease: %w", err)
		}
		return nil
	}
	return release, true, nil
}
