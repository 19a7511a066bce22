package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c := NewLocalCache(time.Minute)
	t.Cleanup(c.Close)
	return c
}

func TestLocalCache_GetSetDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "save:slot1", `{"mode":"hunting"}`, 0))
	v, err := c.Get(ctx, "save:slot1")
	require.NoError(t, err)
	assert.Equal(t, `{"mode":"hunting"}`, v)

	ok, err := c.Exists(ctx, "save:slot1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Del(ctx, "save:slot1", "missing"))
	_, err = c.Get(ctx, "save:slot1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCache_SetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock:autosave", "a", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock:autosave", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "already held")

	time.Sleep(30 * time.Millisecond)
	ok, err = c.SetNX(ctx, "lock:autosave", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be retaken")
}

func TestNewCache_DefaultsToLocal(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalCache{}, c)
	c.(*LocalCache).Close()

	ps, err := NewPubSub(CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalPubSub{}, ps)
}

func TestLocalPubSub_FanOut(t *testing.T) {
	ps := NewLocalPubSub(16)
	ctx := context.Background()

	ch1, cancel1, err := ps.Subscribe(ctx, "agent:m1:intents")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := ps.Subscribe(ctx, "agent:m1:intents", "agent:m2:intents")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "agent:m1:intents", "hello"))
	for _, ch := range []<-chan *Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "agent:m1:intents", msg.Channel)
			assert.Equal(t, "hello", msg.Payload)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive message")
		}
	}
}

func TestLocalPubSub_CancelClosesStream(t *testing.T) {
	ps := NewLocalPubSub(1)
	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "ch", "1"))
	require.NoError(t, ps.Publish(ctx, "ch", "2"), "a full buffer drops instead of blocking")

	cancel()
	cancel()
	msg, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "1", msg.Payload)
	_, ok = <-ch
	assert.False(t, ok, "channel should be closed after cancel")

	assert.NoError(t, ps.Publish(ctx, "ch", "3"))
}
