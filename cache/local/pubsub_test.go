package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Deliver(t *testing.T) {
	b := NewBus(16)
	ctx := context.Background()

	ch, cancel, err := b.Subscribe(ctx, "notify:user:1", "announce")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(ctx, "notify:user:2", "not mine"))
	require.NoError(t, b.Publish(ctx, "announce", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "announce", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	assert.Empty(t, ch)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := NewBus(16)
	ctx := context.Background()

	ch, cancel, err := b.Subscribe(ctx, "notify:user:1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("notify:user:1"))

	cancel()
	assert.NotPanics(t, cancel)
	assert.Zero(t, b.Subscribers("notify:user:1"))

	_, ok := <-ch
	assert.False(t, ok)
	assert.NoError(t, b.Publish(ctx, "notify:user:1", "after cancel"))
}

func TestBus_FullBufferDrops(t *testing.T) {
	b := NewBus(1)
	ctx := context.Background()

	_, cancel, err := b.Subscribe(ctx, "notify:user:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(ctx, "notify:user:1", "one"))
	require.NoError(t, b.Publish(ctx, "notify:user:1", "two"))
	assert.EqualValues(t, 1, b.Dropped())
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus(4)
	ctx := context.Background()

	a, cancelA, err := b.Subscribe(ctx, "announce")
	require.NoError(t, err)
	defer cancelA()
	c, cancelC, err := b.Subscribe(ctx, "announce")
	require.NoError(t, err)
	defer cancelC()

	require.NoError(t, b.Publish(ctx, "announce", "maintenance"))
	assert.Equal(t, "maintenance", (<-a).Payload)
	assert.Equal(t, "maintenance", (<-c).Payload)
}
