package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"promptforge/pkg/domain"
)

// StateCache keeps the latest file snapshot of active conversations in
// Redis with a TTL, so iterative requests skip the Postgres read. Misses
// fall through to the Store; entries are overwritten on every append.
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateCache builds a Redis-backed snapshot cache.
func NewStateCache(addr, password string, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StateCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Put stores the current snapshot for a conversation.
func (c *StateCache) Put(ctx context.Context, conversationID string, files domain.FileState) error {
	payload, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(conversationID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Get returns the cached snapshot, reporting a miss with ok=false.
func (c *StateCache) Get(ctx context.Context, conversationID string) (domain.FileState, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var files domain.FileState
	if err := json.Unmarshal([]byte(payload), &files); err != nil {
		// Treat a corrupt entry as a miss; the store remains authoritative.
		return nil, false, nil
	}
	return files, true, nil
}

// Invalidate drops the cached snapshot for a conversation.
func (c *StateCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.client.Del(ctx, snapshotKey(conversationID)).Err()
}

func snapshotKey(conversationID string) string {
	return "snapshot:" + conversationID
}
