package onlyfans

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the profile cache capacity used when none is given
const DefaultCacheSize = 1024

// ProfileFetcher resolves a profile by id or username.
type ProfileFetcher interface {
	User(ctx context.Context, idOrName string) (*User, error)
}

// ProfileCache is a bounded LRU of profile lookups keyed by the id or
// username that was requested. Concurrent lookups of the same key share one
// upstream call. Failed lookups are not cached.
type ProfileCache struct {
	fetcher ProfileFetcher
	users   *lru.Cache[string, *User]
	group   singleflight.Group
}

// NewProfileCache creates a cache in front of fetcher. A capacity below one
// uses DefaultCacheSize.
func NewProfileCache(fetcher ProfileFetcher, capacity int) *ProfileCache {
	if capacity < 1 {
		capacity = DefaultCacheSize
	}
	// lru.New only fails on a non-positive size
	users, _ := lru.New[string, *User](capacity)
	return &ProfileCache{fetcher: fetcher, users: users}
}

// Lookup returns the cached profile for key, fetching it on a miss. A caller
// that gives up early leaves the shared fetch running for the others.
func (c *ProfileCache) Lookup(ctx context.Context, key string) (*User, error) {
	if u, ok := c.users.Get(key); ok {
		return u, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		u, err := c.fetcher.User(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		c.users.Add(key, u)
		return u, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*User), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops key so the next lookup goes upstream.
func (c *ProfileCache) Invalidate(key string) {
	c.group.Forget(key)
	c.users.Remove(key)
}

// Purge empties the cache
func (c *ProfileCache) Purge() {
	c.users.Purge()
}

// Len returns the number of cached entries
func (c *ProfileCache) Len() int {
	return c.users.Len()
}
