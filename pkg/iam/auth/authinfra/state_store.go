package authinfra

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps OAuth state values in Redis with a TTL. Consume
// uses GETDEL so a value is accepted at most once across instances.
type RedisStateStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStateStore(rdb redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{rdb: rdb, prefix: "keybridge:oauth_state:"}
}

func (s *RedisStateStore) Save(ctx context.Context, state string, data auth.OAuthState, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errx.Wrap(err, "encode oauth state", errx.TypeInternal)
	}
	if err := s.rdb.Set(ctx, s.prefix+state, raw, ttl).Err(); err != nil {
		return errx.Wrap(err, "store oauth state", errx.TypeExternal)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (*auth.OAuthState, error) {
	raw, err := s.rdb.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, iam.ErrInvalidToken().WithDetail("reason", "unknown oauth state")
	}
	if err != nil {
		return nil, errx.Wrap(err, "load oauth state", errx.TypeExternal)
	}

	var data auth.OAuthState
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errx.Wrap(err, "decode oauth state", errx.TypeInternal)
	}
	return &data, nil
}

// MemoryStateStore is a single-instance StateStore for development.
type MemoryStateStore struct {
	mu     sync.Mutex
	states *cache.Cache
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: cache.New(10*time.Minute, time.Minute)}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, data auth.OAuthState, ttl time.Duration) error {
	s.states.Set(state, data, ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (*auth.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.states.Get(state)
	if !ok {
		return nil, iam.ErrInvalidToken().WithDetail("reason", "unknown oauth state")
	}
	s.states.Delete(state)
	data := v.(auth.OAuthState)
	return &data, nil
}
