package gourdiansession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTeamAccessResolver(t *testing.T) {
	resolver := StaticTeamAccessResolver{
		"teamA-admins": {{TeamID: "t1", TeamName: "teamA", Role: RoleAdmin}},
		"teamA-users":  {{TeamID: "t1", TeamName: "teamA", Role: RoleUser}},
		"teamB-users":  {{TeamID: "t2", TeamName: "teamB", Role: RoleUser}},
	}

	t.Run("Highest role wins", func(t *testing.T) {
		teams, err := resolver.ResolveTeamAccess(context.Background(), []string{"teamA-users", "teamA-admins"})
		require.NoError(t, err)
		assert.Equal(t, []TeamAccess{{TeamID: "t1", TeamName: "teamA", Role: RoleAdmin}}, teams)
	})

	t.Run("Unknown groups are ignored", func(t *testing.T) {
		teams, err := resolver.ResolveTeamAccess(context.Background(), []string{"nobody", "teamB-users"})
		require.NoError(t, err)
		assert.Equal(t, []TeamAccess{{TeamID: "t2", TeamName: "teamB", Role: RoleUser}}, teams)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := resolver.ResolveTeamAccess(ctx, []string{"teamB-users"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNoopTeamAccessResolver(t *testing.T) {
	_, err := NoopTeamAccessResolver{}.ResolveTeamAccess(context.Background(), []string{"g"})
	assert.ErrorIs(t, err, ErrResolverUnavailable)

	cache := NewTeamAccessCache(nil)
	_, err = cache.Get(context.Background(), []string{"g"})
	assert.ErrorIs(t, err, ErrResolverUnavailable)
}

func TestTeamAccessCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Hit within TTL", func(t *testing.T) {
		resolver := &countingResolver{next: testTeams()}
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		first, err := cache.Get(ctx, []string{"teamA-admins", "teamB-users"})
		require.NoError(t, err)
		second, err := cache.Get(ctx, []string{"teamB-users", "teamA-admins", "teamA-admins"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 2)
		assert.EqualValues(t, 1, resolver.calls.Load())
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("Miss after TTL", func(t *testing.T) {
		clock := newFakeClock()
		resolver := &countingResolver{next: testTeams()}
		cache := NewTeamAccessCache(resolver, WithCacheClock(clock), WithCacheTTL(time.Minute))
		assert.Equal(t, time.Minute, cache.TTL())

		_, err := cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)

		clock.Advance(time.Minute - time.Millisecond)
		_, err = cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, resolver.calls.Load())

		clock.Advance(time.Millisecond)
		_, err = cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, resolver.calls.Load())
	})

	t.Run("Invalidate forces a new lookup", func(t *testing.T) {
		resolver := &countingResolver{next: testTeams()}
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		_, err := cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		cache.Invalidate()
		assert.Equal(t, 0, cache.Len())

		_, err = cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, resolver.calls.Load())
	})

	t.Run("Errors are not cached", func(t *testing.T) {
		fail := true
		var mu sync.Mutex
		resolver := TeamAccessResolverFunc(func(ctx context.Context, groups []string) ([]TeamAccess, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return nil, errors.New("team store down")
			}
			return testTeams().ResolveTeamAccess(ctx, groups)
		})
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		_, err := cache.Get(ctx, []string{"teamA-admins"})
		require.Error(t, err)
		assert.Equal(t, 0, cache.Len())

		mu.Lock()
		fail = false
		mu.Unlock()

		teams, err := cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		assert.Len(t, teams, 1)
	})

	t.Run("Empty result is cached", func(t *testing.T) {
		resolver := &countingResolver{next: testTeams()}
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		for range 3 {
			teams, err := cache.Get(ctx, []string{"unknown"})
			require.NoError(t, err)
			assert.NotNil(t, teams)
			assert.Empty(t, teams)
		}
		assert.EqualValues(t, 1, resolver.calls.Load())
	})

	t.Run("Callers get copies", func(t *testing.T) {
		cache := NewTeamAccessCache(testTeams(), WithCacheClock(newFakeClock()))

		teams, err := cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		teams[0].Role = RoleUser

		again, err := cache.Get(ctx, []string{"teamA-admins"})
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, again[0].Role)
	})

	t.Run("Resolver sees canonical groups", func(t *testing.T) {
		var seen []string
		resolver := TeamAccessResolverFunc(func(ctx context.Context, groups []string) ([]TeamAccess, error) {
			seen = groups
			return nil, nil
		})
		cache := NewTeamAccessCache(resolver)

		_, err := cache.Get(ctx, []string{"b", "", "a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, seen)
	})
}

func TestTeamAccessCacheConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("Concurrent misses share one lookup", func(t *testing.T) {
		release := make(chan struct{})
		resolver := &countingResolver{next: TeamAccessResolverFunc(func(ctx context.Context, groups []string) ([]TeamAccess, error) {
			<-release
			return testTeams().ResolveTeamAccess(ctx, groups)
		})}
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		const workers = 20
		var wg sync.WaitGroup
		results := make([][]TeamAccess, workers)
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = cache.Get(ctx, []string{"teamA-admins"})
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		for i := range workers {
			require.NoError(t, errs[i])
			assert.Equal(t, []TeamAccess{{TeamID: "t1", TeamName: "teamA", Role: RoleAdmin}}, results[i])
		}
		assert.EqualValues(t, 1, resolver.calls.Load())
	})

	t.Run("Invalidate during lookup wins", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		resolver := TeamAccessResolverFunc(func(ctx context.Context, groups []string) ([]TeamAccess, error) {
			close(entered)
			<-release
			return testTeams().ResolveTeamAccess(ctx, groups)
		})
		cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

		done := make(chan error)
		go func() {
			_, err := cache.Get(ctx, []string{"teamA-admins"})
			done <- err
		}()

		<-entered
		cache.Invalidate()
		close(release)
		require.NoError(t, <-done)

		assert.Equal(t, 0, cache.Len())
	})
}

func TestTeamAccessCacheDeadline(t *testing.T) {
	release := make(chan struct{})
	resolver := TeamAccessResolverFunc(func(context.Context, []string) ([]TeamAccess, error) {
		<-release
		return []TeamAccess{{TeamID: "t1", TeamName: "teamA", Role: RoleAdmin}}, nil
	})
	cache := NewTeamAccessCache(resolver, WithCacheClock(newFakeClock()))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	start := time.Now()
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, errs[i] = cache.Get(ctx, []string{"teamA-admins"})
		}(i)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), time.Second)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, 0, cache.Len())

	// The abandoned lookup still fills the cache once the resolver returns.
	close(release)
	assert.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	teams, err := cache.Get(context.Background(), []string{"teamA-admins"})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, teams[0].Role)
}

func TestTeamAccessCacheMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	cache := NewTeamAccessCache(testTeams(), WithCacheClock(newFakeClock()), WithCacheMetrics(metrics))

	for range 3 {
		_, err := cache.Get(context.Background(), []string{"teamA-admins"})
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("hit")))
}
