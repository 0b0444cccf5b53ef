package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore hands out single-use OAuth state nonces.
type StateStore interface {
	Issue(ctx context.Context) (string, error)
	// Consume reports whether state was issued, is unexpired and unused.
	// A successful call burns the nonce.
	Consume(ctx context.Context, state string) (bool, error)
}

func newNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

const redisStatePrefix = "oauth_state:"

type RedisStateStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{Client: client, TTL: ttl}
}

func (s *RedisStateStore) Issue(ctx context.Context) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	if err := s.Client.Set(ctx, redisStatePrefix+nonce, "1", s.TTL).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return nonce, nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	err := s.Client.GetDel(ctx, redisStatePrefix+state).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
}

// MemoryStateStore keeps nonces in process. Only suitable for a single
// instance.
type MemoryStateStore struct {
	TTL time.Duration
	Now func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{TTL: ttl, Now: time.Now, states: make(map[string]time.Time)}
}

func (s *MemoryStateStore) Issue(ctx context.Context) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, k)
		}
	}
	s.states[nonce] = now.Add(s.TTL)
	return nonce, nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	return s.Now().Before(exp), nil
}
