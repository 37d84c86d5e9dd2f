package blobcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind names the two payload families cached per request.
type Kind string

const (
	KindAux      Kind = "aux"      // raw auxiliary sensor snapshot
	KindFeatures Kind = "features" // extracted visual features
)

const keyFmt = "blob:%s:%s:%s" // kind, session id, prediction request id

var ErrNotFound = errors.New("blob not found")

// Cache is a content-addressed store for heavy per-turn payloads, keyed by
// (session, prediction request). Entries expire on their own; the session
// store remains the durable record.
type Cache struct {
	rdb     *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func New(rdb *redis.Client) *Cache {
	return &Cache{
		rdb:     rdb,
		ttl:     24 * time.Hour,
		timeout: 5 * time.Second,
	}
}

// Key builds the cache key for one payload of one request.
func Key(kind Kind, sessionID, requestID string) string {
	return fmt.Sprintf(keyFmt, kind, sessionID, requestID)
}

func (c *Cache) Exists(ctx context.Context, kind Kind, sessionID, requestID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	n, err := c.rdb.Exists(ctx, Key(kind, sessionID, requestID)).Result()
	if err != nil {
		return false, fmt.Errorf("blob exists check failed: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) Save(ctx context.Context, kind Kind, sessionID, requestID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Set(ctx, Key(kind, sessionID, requestID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("blob save failed: %w", err)
	}
	return nil
}

func (c *Cache) Load(ctx context.Context, kind Kind, sessionID, requestID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.rdb.Get(ctx, Key(kind, sessionID, requestID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob load failed: %w", err)
	}
	return raw, nil
}

// Healthy pings redis; the health gate treats the cache as a collaborator.
func (c *Cache) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
