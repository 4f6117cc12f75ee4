package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the snapshot
const DefaultRedisKey = "supersonic:state"

// KV is the subset of a redis client the store needs
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the snapshot as a JSON string under one key
type RedisStore struct {
	kv    KV
	key   string
	close func() error
}

// NewRedisStore wraps an existing client
func NewRedisStore(kv KV, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{kv: kv, key: key, close: func() error { return nil }}
}

// DialRedis connects to addr and verifies the connection
func DialRedis(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStore(client, DefaultRedisKey)
	s.close = client.Close
	return s, nil
}

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.kv.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.key, err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(Stamp(snap, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.close()
}
