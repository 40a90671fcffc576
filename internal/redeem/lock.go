package redeem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "redeem:lock:"
	lockTTL       = 5 * time.Second
	lockRetry     = 10 * time.Millisecond
)

// ErrSessionBusy is returned when a session lock cannot be taken in time.
var ErrSessionBusy = errors.New("session busy")

func lockKey(sid string) string {
	return lockKeyPrefix + sid
}

// unlockScript deletes the lock only if it still holds our token, so an
// expired lock re-taken by another request is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a SETNX lock on the session, retrying until ctx is done or
// lockTTL has passed. The lock expires on its own if the holder dies.
func (r *RedisStore) Lock(ctx context.Context, sid string) (func(), error) {
	key := lockKey(sid)
	token := uuid.NewString()
	deadline := time.Now().Add(lockTTL)
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock session: %w", err)
		}
		if ok {
			return func() {
				// ctx may already be cancelled; the release must still go out
				unlockScript.Run(context.Background(), r.rdb, []string{key}, token) //nolint:errcheck
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

// sessionLocks is a keyed mutex. Entries are dropped once nobody holds or
// waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	held chan struct{}
	refs int
}

func (l *sessionLocks) lock(ctx context.Context, sid string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	e, ok := l.locks[sid]
	if !ok {
		e = &sessionLock{held: make(chan struct{}, 1)}
		l.locks[sid] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.held <- struct{}{}:
		return func() {
			<-e.held
			l.release(sid, e)
		}, nil
	case <-ctx.Done():
		l.release(sid, e)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) release(sid string, e *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, sid)
	}
}
