package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialMiniredis(t *testing.T, prefix string) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c, err := Dial(Config{Addr: mr.Addr(), Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClient_KV(t *testing.T) {
	c, mr := dialMiniredis(t, "nf:")
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "session:t", "7", time.Minute))
	v, err := c.Get(ctx, "session:t")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	assert.True(t, mr.Exists("nf:session:t"))
	assert.False(t, mr.Exists("session:t"))

	ok, err := c.Exists(ctx, "session:t")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Del(ctx, "session:t"))
	ok, err = c.Exists(ctx, "session:t")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_SetTTL(t *testing.T) {
	c, mr := dialMiniredis(t, "")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "games:list", "[]", time.Minute))
	mr.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "games:list")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDial_PingFails(t *testing.T) {
	_, err := Dial(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestClient_CancelClosesStream(t *testing.T) {
	c, _ := dialMiniredis(t, "nf:")

	ch, cancel, err := c.Subscribe(context.Background(), "notify:user:3")
	require.NoError(t, err)
	cancel()
	assert.NotPanics(t, cancel)

	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestClient_PublishSubscribe(t *testing.T) {
	c, _ := dialMiniredis(t, "nf:")
	ctx := context.Background()

	ch, cancel, err := c.Subscribe(ctx, "notify:user:9")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, c.Publish(ctx, "notify:user:9", `{"type":"poke.received"}`))

	select {
	case msg := <-ch:
		assert.Equal(t, "notify:user:9", msg.Channel)
		assert.Equal(t, `{"type":"poke.received"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
