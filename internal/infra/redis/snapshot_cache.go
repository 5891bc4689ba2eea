package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const snapshotKey = "slot-engine:capacity-snapshot"

// SnapshotCache keeps the admin capacity snapshot warm so the listing
// endpoint does not hit Postgres on every poll.
type SnapshotCache struct {
	client *redClient
	ttl    time.Duration
}

func NewSnapshotCache(client *redClient, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func (c *SnapshotCache) Store(ctx context.Context, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey, data, c.ttl)
}

// Load unmarshals the cached snapshot into out and reports whether it was
// present.
func (c *SnapshotCache) Load(ctx context.Context, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, snapshotKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, snapshotKey)
}
