// Package treestore mirrors the cached FTP tree into Redis so that every
// replica, and a freshly restarted process, can serve the last good walk.
package treestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gluk-w/ftpgate/internal/ftpproxy"
)

const defaultKey = "ftpgate:tree"

var errStoreUnavailable = errors.New("tree store unavailable")

// Store saves and loads one snapshot under a single Redis key.
type Store struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// New returns a Store. An empty key falls back to "ftpgate:tree"; ttl <= 0
// keeps the snapshot until it is overwritten.
func New(client *redis.Client, key string, ttl time.Duration) *Store {
	if key == "" {
		key = defaultKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{redis: client, key: key, ttl: ttl}
}

// Save implements ftpproxy.TreeMirror.
func (s *Store) Save(ctx context.Context, snap ftpproxy.Snapshot) error {
	encoded, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}
	return nil
}

// Load implements ftpproxy.TreeMirror.
func (s *Store) Load(ctx context.Context) (ftpproxy.Snapshot, bool, error) {
	raw, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ftpproxy.Snapshot{}, false, nil
	}
	if err != nil {
		return ftpproxy.Snapshot{}, false, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}

	var snap ftpproxy.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ftpproxy.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Ping checks the Redis connection. Used at startup so a bad address is
// logged once instead of on every refresh.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}
	return nil
}
