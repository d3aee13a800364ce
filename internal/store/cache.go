package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cortexuvula/roomsync/internal/room"
)

// DefaultCacheSize is the number of room documents kept hot in memory.
const DefaultCacheSize = 25

// CachedStore fronts a Store with an LRU cache keyed by room code. All writes
// must go through the CachedStore so the cache never serves a stale document.
// Callers always receive clones.
//
// mu orders every backing write with its cache write, and a cache miss with
// its fill, so the cache never holds a document older than the stored one.
// Cache hits do not take mu.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[string, *room.Room]
	mu      sync.Mutex
}

func NewCached(backing Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *room.Room](size)
	if err != nil {
		return nil, fmt.Errorf("creating room cache: %w", err)
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

func (c *CachedStore) FindByRoomCode(ctx context.Context, roomCode string) (*room.Room, error) {
	if r, ok := c.cache.Get(roomCode); ok {
		return r.Clone(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Filled by a writer while we waited.
	if r, ok := c.cache.Get(roomCode); ok {
		return r.Clone(), nil
	}
	r, err := c.backing.FindByRoomCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	c.cache.Add(roomCode, r.Clone())
	return r, nil
}

func (c *CachedStore) InsertRoom(ctx context.Context, r *room.Room) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backing.InsertRoom(ctx, r); err != nil {
		return err
	}
	c.cache.Add(r.RoomCode, r.Clone())
	return nil
}

func (c *CachedStore) UpdateByID(ctx context.Context, id string, ops ...Op) (*room.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.backing.UpdateByID(ctx, id, ops...)
	if err != nil {
		return nil, err
	}
	c.cache.Add(r.RoomCode, r.Clone())
	return r, nil
}

func (c *CachedStore) DeleteByRoomCode(ctx context.Context, roomCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.backing.DeleteByRoomCode(ctx, roomCode)
	c.cache.Remove(roomCode)
	return err
}

// cachedHas reports whether roomCode is cached without touching its recency.
func (c *CachedStore) cachedHas(roomCode string) bool {
	return c.cache.Contains(roomCode)
}

func (c *CachedStore) ListStale(ctx context.Context, before time.Time) ([]*room.Room, error) {
	return c.backing.ListStale(ctx, before)
}

func (c *CachedStore) Count(ctx context.Context) (int, error) {
	return c.backing.Count(ctx)
}

// Cached reports how many documents are currently cached.
func (c *CachedStore) Cached() int {
	return c.cache.Len()
}

func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.backing.Close()
}
