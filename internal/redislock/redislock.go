// Package redislock implements single-instance Redis locks with the SET NX PX
// pattern described in
// https://redis.io/docs/latest/develop/use/patterns/distributed-locks/.
//
// Under extreme conditions (failover mid-hold, clock jumps) two holders can
// briefly overlap. Delivery claims tolerate that: a lost race produces one
// duplicate HTTP attempt, which receivers must already handle under
// at-least-once delivery, and the TTL bounds how long a crashed worker can
// hold a claim. Do not use this where duplicate execution corrupts data.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/wayposthq/waypost/internal/redis"
)

const DefaultTTL = 10 * time.Second

// Locker acquires locks on arbitrary keys with a shared TTL.
type Locker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func New(client redis.Cmdable, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire attempts SET NX PX on the key. It returns a handle and true when
// this call took the lock, and (nil, false) when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, bool, error) {
	lock := &Lock{client: l.client, key: key, token: newToken()}
	result := l.client.SetNX(ctx, key, lock.token, l.ttl)
	if result.Err() != nil {
		return nil, false, result.Err()
	}
	if !result.Val() {
		return nil, false, nil
	}
	return lock, true, nil
}

// Lock is one held lock. The token distinguishes this holder from a later one
// that acquired the key after this hold expired.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
}

// releaseScript deletes the key only while the holder's token still matches,
// so an expired holder cannot release its successor's lock.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Release frees the lock. It returns false when the hold had already expired
// and the key belongs to someone else (or to no one).
func (l *Lock) Release(ctx context.Context) (bool, error) {
	result := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token)
	if result.Err() != nil {
		return false, result.Err()
	}
	val, err := result.Int()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// newToken returns a 160-bit random holder identity.
func newToken() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err == nil {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
