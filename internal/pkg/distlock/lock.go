// Package distlock provides a Redis-backed mutual exclusion lock shared
// between processes, used to keep two releases from rewriting the versions
// file at the same time.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another owner holds the lock.
var ErrHeld = errors.New("lock is held by another owner")

const keyPrefix = "klaviyo-webflow:lock:"

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a single-owner lock stored under one Redis key with a TTL.
// A Lock value is not safe for concurrent use.
type Lock struct {
	client redis.Cmdable
	key    string
	owner  string
	ttl    time.Duration
}

// New returns an unacquired lock named name.
func New(client redis.Cmdable, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    keyPrefix + name,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key returns the Redis key backing the lock.
func (l *Lock) Key() string { return l.key }

// Acquire takes the lock, returning ErrHeld when someone else owns it.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release drops the lock if this owner still holds it. Releasing a lock
// that expired or was taken over is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Extend pushes the expiry out to ttl from now. It returns ErrHeld when the
// lock is no longer owned.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrHeld
	}
	return nil
}
