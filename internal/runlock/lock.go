// Package runlock keeps two processes from syncing the same feed at once.
package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/purchasesync/internal/config"
	"go.uber.org/fx"
)

const keyFeedLock = "purchasesync:lock:"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrEmptyFeed = errors.New("lock_feed_empty")

// Locker holds per-feed locks in Redis. Without a client the locks are held
// in process, which still keeps the scheduler and manual runs apart.
type Locker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]struct{}
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Config config.Config
}

func New(p Params) *Locker {
	return NewLocker(p.Client, p.Config.RunLockTTL)
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
		local:  make(map[string]struct{}),
	}
}

// Enabled reports whether locks are shared between processes.
func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire takes the feed lock. ok is false when another holder has it. The
// returned release func is always safe to call.
func (l *Locker) Acquire(ctx context.Context, feed string) (release func(context.Context) error, ok bool, err error) {
	noop := func(context.Context) error { return nil }
	if feed == "" {
		return noop, false, ErrEmptyFeed
	}
	if l == nil {
		return noop, true, nil
	}
	if !l.Enabled() {
		return l.acquireLocal(feed)
	}

	key := keyFeedLock + feed
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return noop, false, err
	}
	return func(ctx context.Context) error {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}

func (l *Locker) acquireLocal(feed string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.local[feed]; held {
		return func(context.Context) error { return nil }, false, nil
	}
	l.local[feed] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.local, feed)
			l.mu.Unlock()
		})
		return nil
	}, true, nil
}

var Module = fx.Module("runlock",
	fx.Provide(New),
)
