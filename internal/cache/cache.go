// Package cache is the short-lived read cache in front of the notes table.
// Entries live for the configured staleness window (five minutes by
// default) or until a mutation invalidates them. A nil *Cache disables
// caching entirely, and cache errors degrade to direct reads; a request
// must never fail because Redis is down.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notable/api/internal/store"
)

const (
	listPrefix = "notes:"
	notePrefix = "note:"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient creates a cache from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// GetNoteList returns the cached list for an owner, or ok=false on a miss
// or any cache error.
func (c *Cache) GetNoteList(ctx context.Context, ownerID string) ([]store.Note, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, listPrefix+ownerID).Result()
	if err != nil {
		return nil, false
	}
	var notes []store.Note
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return nil, false
	}
	return notes, true
}

func (c *Cache) SetNoteList(ctx context.Context, ownerID string, notes []store.Note) {
	if c == nil {
		return
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, listPrefix+ownerID, data, c.ttl).Err()
}

// GetNote returns a cached note only when it belongs to ownerID. The
// ownership check keeps a cached entry from leaking across callers.
func (c *Cache) GetNote(ctx context.Context, noteID, ownerID string) (store.Note, bool) {
	if c == nil {
		return store.Note{}, false
	}
	raw, err := c.client.Get(ctx, notePrefix+noteID).Result()
	if err != nil {
		return store.Note{}, false
	}
	var note store.Note
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return store.Note{}, false
	}
	if note.OwnerID != ownerID {
		return store.Note{}, false
	}
	return note, true
}

func (c *Cache) SetNote(ctx context.Context, note store.Note) {
	if c == nil {
		return
	}
	data, err := json.Marshal(note)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, notePrefix+note.ID, data, c.ttl).Err()
}

// Invalidate drops the owner's list entry and the note entry. Called only
// after the underlying write has succeeded.
func (c *Cache) Invalidate(ctx context.Context, ownerID, noteID string) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, listPrefix+ownerID, notePrefix+noteID).Err()
}
