package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/geocoder89/authgate/internal/cache"
	"github.com/geocoder89/authgate/internal/redisclient"
)

// StateTTL bounds how long a user has to finish a provider handshake.
const StateTTL = 10 * time.Minute

var ErrStateNotFound = errors.New("oauth state not found or expired")

// StateStore remembers which provider an outstanding state value was issued
// for. Take consumes the state.
type StateStore interface {
	Put(ctx context.Context, state, provider string, ttl time.Duration) error
	Take(ctx context.Context, state string) (string, error)
}

func NewState() string {
	return uuid.NewString()
}

type MemoryStateStore struct {
	c *cache.Cache
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{c: cache.New(StateTTL)}
}

func (s *MemoryStateStore) Put(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.c.Sweep()
	s.c.SetTTL(state, provider, ttl)
	return nil
}

func (s *MemoryStateStore) Take(ctx context.Context, state string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := s.c.Take(state)
	if !ok {
		return "", ErrStateNotFound
	}
	provider, _ := v.(string)
	return provider, nil
}

type RedisStateStore struct {
	rdb    *redisclient.Client
	prefix string
}

func NewRedisStateStore(rdb *redisclient.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb, prefix: "authgate:oauth_state:"}
}

func (s *RedisStateStore) Put(ctx context.Context, state, provider string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = StateTTL
	}
	return s.rdb.SetEx(ctx, s.prefix+state, provider, ttl)
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (string, error) {
	provider, ok, err := s.rdb.GetDel(ctx, s.prefix+state)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrStateNotFound
	}
	return provider, nil
}
