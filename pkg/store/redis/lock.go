package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crawlfleet/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	lockTTL            = 30 * time.Second // Expires if the holder dies without releasing
	lockAcquireTimeout = 5 * time.Second
	lockRenewInterval  = 10 * time.Second
)

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lease is a renewable lock on one key. The value identifies the holder so
// that only the holder can renew or release it.
type Lease struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	renew  time.Duration

	mu      sync.Mutex
	held    bool
	stop    chan struct{}
	stopped chan struct{}
}

// NewLease creates an unheld lease on key
func NewLease(client *redis.Client, key string) *Lease {
	return &Lease{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    lockTTL,
		renew:  lockRenewInterval,
	}
}

// TryAcquire takes the lease if nobody holds it and starts renewing it
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()
	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.key)
		return false, nil
	}

	l.held = true
	l.stop = make(chan struct{})
	l.stopped = make(chan struct{})
	go l.renewLoop(l.stop, l.stopped)

	logger.DebugCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Release stops renewal and deletes the key if it is still ours
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	close(l.stop)
	stopped := l.stopped
	l.mu.Unlock()
	<-stopped

	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result == 0 {
		logger.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

// Held reports whether this instance still holds the lease
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *Lease) renewLoop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), lockAcquireTimeout)
			result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew lock %s: %v", l.key, err)
				continue
			}
			if result == 0 {
				logger.WarnCtx(ctx, "lock %s lost", l.key)
				l.mu.Lock()
				l.held = false
				l.mu.Unlock()
				return
			}
		}
	}
}
