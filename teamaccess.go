package gourdiansession

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TeamAccessResolver maps upstream group identifiers to team memberships.
// Implementations live outside this package; calls may fail or time out.
type TeamAccessResolver interface {
	ResolveTeamAccess(ctx context.Context, groups []string) ([]TeamAccess, error)
}

// TeamAccessResolverFunc adapts a function to TeamAccessResolver.
type TeamAccessResolverFunc func(ctx context.Context, groups []string) ([]TeamAccess, error)

// ResolveTeamAccess calls f.
func (f TeamAccessResolverFunc) ResolveTeamAccess(ctx context.Context, groups []string) ([]TeamAccess, error) {
	return f(ctx, groups)
}

// NoopTeamAccessResolver never resolves anything. Hosts running where the team store is
// unreachable wire it so that sessions fall back to reconstructed team lists.
type NoopTeamAccessResolver struct{}

// ResolveTeamAccess always returns ErrResolverUnavailable.
func (NoopTeamAccessResolver) ResolveTeamAccess(context.Context, []string) ([]TeamAccess, error) {
	return nil, ErrResolverUnavailable
}

// StaticTeamAccessResolver resolves groups from a fixed table. Unknown groups are ignored
// and a team granted by several groups keeps its highest role.
type StaticTeamAccessResolver map[string][]TeamAccess

// ResolveTeamAccess implements TeamAccessResolver.
func (s StaticTeamAccessResolver) ResolveTeamAccess(ctx context.Context, groups []string) ([]TeamAccess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var teams []TeamAccess
	for _, g := range canonicalGroups(groups) {
		for _, t := range s[g] {
			if i, ok := index[t.TeamID]; ok {
				if t.Role == RoleAdmin {
					teams[i].Role = RoleAdmin
				}
				continue
			}
			index[t.TeamID] = len(teams)
			teams = append(teams, t)
		}
	}
	return teams, nil
}

// teamAccessEntry is a cached resolver result.
type teamAccessEntry struct {
	data   []TeamAccess
	expiry time.Time
}

// TeamAccessCache is a TTL cache in front of a TeamAccessResolver.
//
// Keys are the canonical (sorted, deduplicated) group set. Concurrent misses for the same
// key share a single resolver call. The cache is process-local and never persisted.
type TeamAccessCache struct {
	resolver TeamAccessResolver
	ttl      time.Duration
	clock    Clock
	metrics  *Metrics

	mu         sync.RWMutex
	entries    map[string]teamAccessEntry
	generation uint64

	group singleflight.Group
}

// CacheOption configures a TeamAccessCache.
type CacheOption func(*TeamAccessCache)

// WithCacheTTL sets the entry lifetime (default 5 minutes).
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *TeamAccessCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock sets the clock used for expiry.
func WithCacheClock(clock Clock) CacheOption {
	return func(c *TeamAccessCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCacheMetrics records hits and misses on m.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *TeamAccessCache) { c.metrics = m }
}

// NewTeamAccessCache creates a cache in front of resolver. A nil resolver behaves like
// NoopTeamAccessResolver.
func NewTeamAccessCache(resolver TeamAccessResolver, opts ...CacheOption) *TeamAccessCache {
	if resolver == nil {
		resolver = NoopTeamAccessResolver{}
	}
	c := &TeamAccessCache{
		resolver: resolver,
		ttl:      DefaultTeamAccessCacheTTL,
		clock:    SystemClock{},
		entries:  make(map[string]teamAccessEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the team access for groups, calling the resolver when no live entry exists.
// Resolver errors are returned unchanged and nothing is cached for them.
//
// Get returns ctx.Err() as soon as ctx ends, even when the resolver ignores its context.
// The abandoned call keeps running and may still populate the cache when it completes.
func (c *TeamAccessCache) Get(ctx context.Context, groups []string) ([]TeamAccess, error) {
	canonical := canonicalGroups(groups)
	key := groupKey(canonical)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.clock.Now().Before(entry.expiry) {
		c.metrics.cacheHit()
		return cloneTeams(entry.data), nil
	}
	c.metrics.cacheMiss()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.RLock()
		gen := c.generation
		c.mu.RUnlock()

		data, err := c.resolver.ResolveTeamAccess(ctx, canonical)
		if err != nil {
			return nil, err
		}
		data = cloneTeams(data)
		if data == nil {
			data = []TeamAccess{}
		}

		c.mu.Lock()
		// An Invalidate that happened during the call wins over this result.
		if gen == c.generation {
			c.entries[key] = teamAccessEntry{data: data, expiry: c.clock.Now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneTeams(res.Val.([]TeamAccess)), nil
	}
}

// Invalidate drops every cached entry. Hosts call it when team or role data changes upstream.
func (c *TeamAccessCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]teamAccessEntry)
	c.generation++
	c.mu.Unlock()
}

// Len returns the number of cached entries, including expired ones not yet replaced.
func (c *TeamAccessCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the entry lifetime.
func (c *TeamAccessCache) TTL() time.Duration { return c.ttl }
