package redeem

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "redeem:session:"

// Store keeps the UI state of each browser session.
// Lock serializes read-modify-write cycles on one session; the returned
// func releases it.
type Store interface {
	Load(ctx context.Context, sid string) (State, error)
	Save(ctx context.Context, sid string, s State) error
	Delete(ctx context.Context, sid string) error
	Lock(ctx context.Context, sid string) (func(), error)
}

func sessionKey(sid string) string {
	return sessionKeyPrefix + sid
}

// RedisStore keeps each session as a hash that expires after ttl of inactivity.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, sid string) (State, error) {
	vals, err := r.rdb.HGetAll(ctx, sessionKey(sid)).Result()
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	if len(vals) == 0 {
		return State{}, nil
	}
	return stateFromMap(vals), nil
}

func (r *RedisStore) Save(ctx context.Context, sid string, s State) error {
	key := sessionKey(sid)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, stateToMap(s))
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sid string) error {
	if err := r.rdb.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func stateToMap(s State) map[string]any {
	m := map[string]any{
		"kind":            s.Kind.String(),
		"confirm_rebound": strconv.FormatBool(s.ConfirmRebound),
	}
	p := s.Pending
	if s.Kind == KindConfirmed {
		p = s.Confirmed
		m["receipt_id"] = s.ReceiptID
	}
	if p != nil {
		m["amount_mb"] = formatFloat(p.AmountMB)
		m["label"] = p.Label
		m["value"] = formatFloat(p.Value)
		m["commission"] = formatFloat(p.Commission)
		m["payout"] = formatFloat(p.Payout)
	}
	return m
}

func stateFromMap(m map[string]string) State {
	rebound, _ := strconv.ParseBool(m["confirm_rebound"])
	s := State{Kind: parseKind(m["kind"]), ConfirmRebound: rebound}
	if s.Kind == KindIdle {
		return s
	}
	if _, ok := m["label"]; !ok {
		// payload lost; treat as closed
		return State{ConfirmRebound: rebound}
	}
	amountMB, _ := strconv.ParseFloat(m["amount_mb"], 64)
	value, _ := strconv.ParseFloat(m["value"], 64)
	commission, _ := strconv.ParseFloat(m["commission"], 64)
	payout, _ := strconv.ParseFloat(m["payout"], 64)
	p := &Pending{
		AmountMB:   amountMB,
		Label:      m["label"],
		Value:      value,
		Commission: commission,
		Payout:     payout,
	}
	if s.Kind == KindPending {
		s.Pending = p
	} else {
		s.Confirmed = p
		s.ReceiptID = m["receipt_id"]
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]State
	locks    sessionLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

func (m *MemoryStore) Load(_ context.Context, sid string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.sessions[sid]), nil
}

func (m *MemoryStore) Save(_ context.Context, sid string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = cloneState(s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context, sid string) (func(), error) {
	return m.locks.lock(ctx, sid)
}

func cloneState(s State) State {
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	if s.Confirmed != nil {
		c := *s.Confirmed
		s.Confirmed = &c
	}
	return s
}
