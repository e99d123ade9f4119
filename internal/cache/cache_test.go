package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dailyfeed/internal/models"
	"dailyfeed/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTL_GetSetExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string, int](time.Minute, clock.Now)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTTL_Invalidate(t *testing.T) {
	c := NewTTL[string, string](time.Hour, nil)
	c.Set("a", "x")
	c.Set("b", "y")

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.InvalidateAll()
	assert.Zero(t, c.Len())
}

type countingCatalog struct {
	*memory.Store
	calls int
	err   error
}

func (c *countingCatalog) ListActiveTopics(ctx context.Context) ([]models.Topic, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.ListActiveTopics(ctx)
}

func TestCachedCatalog_SingleStoreCallWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	backing := &countingCatalog{Store: memory.New(clock.Now)}
	backing.AddTopic(models.Topic{Name: "Go", IsActive: true})
	cached := NewCachedCatalog(backing, 5*time.Minute, clock.Now)
	ctx := context.Background()

	first, err := cached.ListActiveTopics(ctx)
	require.NoError(t, err)
	second, err := cached.ListActiveTopics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.calls)
	assert.Equal(t, first, second)

	second[0].Name = "mutated"
	third, err := cached.ListActiveTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Go", third[0].Name)

	clock.Advance(5 * time.Minute)
	_, err = cached.ListActiveTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)

	cached.InvalidateTopics()
	_, err = cached.ListActiveTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, backing.calls)
}

func TestCachedCatalog_ErrorsAreNotCached(t *testing.T) {
	backing := &countingCatalog{Store: memory.New(nil), err: errors.New("db down")}
	cached := NewCachedCatalog(backing, time.Minute, nil)

	_, err := cached.ListActiveTopics(context.Background())
	require.Error(t, err)

	backing.err = nil
	_, err = cached.ListActiveTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}
