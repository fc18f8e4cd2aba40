package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T) (*Cache, *clock) {
	c := NewCache(time.Hour)
	t.Cleanup(c.Close)
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "session:abc", "42", 0))
	v, err := c.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestCache_TTL(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "games:list", "[]", time.Minute))
	ok, _ := c.Exists(ctx, "games:list")
	assert.True(t, ok)

	clk.advance(time.Minute)
	_, err := c.Get(ctx, "games:list")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, _ = c.Exists(ctx, "games:list")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.sweep()
	assert.Zero(t, c.Len())
}

func TestCache_Del(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "a", "1", 0)
	_ = c.Set(ctx, "b", "2", 0)

	require.NoError(t, c.Del(ctx, "a", "b", "missing"))
	assert.Zero(t, c.Len())
}

func TestCache_SweeperRuns(t *testing.T) {
	c := NewCache(5 * time.Millisecond)
	t.Cleanup(c.Close)

	_ = c.Set(context.Background(), "gone", "x", time.Millisecond)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCache_CloseTwice(t *testing.T) {
	c, _ := newTestCache(t)
	c.Close()
	assert.NotPanics(t, c.Close)
}
