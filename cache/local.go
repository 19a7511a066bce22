package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func newEntry(value string, ttl time.Duration) entry {
	e := entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache is an in-process Cache with lazy and periodic expiry.
type LocalCache struct {
	mu     sync.Mutex
	kv     map[string]entry
	stopGC chan struct{}
	once   sync.Once
}

// NewLocalCache starts a LocalCache whose expired keys are swept every
// gcInterval (30s when unset).
func NewLocalCache(gcInterval time.Duration) *LocalCache {
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	c := &LocalCache{kv: make(map[string]entry), stopGC: make(chan struct{})}
	go c.runGC(gcInterval)
	return c
}

// Close stops the background sweep.
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// lookup must be called with mu held.
func (c *LocalCache) lookup(key string) (entry, bool) {
	e, ok := c.kv[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(time.Now()) {
		delete(c.kv, key)
		return entry{}, false
	}
	return e, true
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.kv[key] = newEntry(value, ttl)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.kv, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.kv[key] = newEntry(value, ttl)
	return true, nil
}

// LocalPubSub is an in-process fan-out. Slow subscribers drop messages
// rather than block the publisher.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[chan *Message]struct{}
	bufSize int
}

// NewLocalPubSub creates an in-process PubSub with per-subscriber buffers of bufSize.
func NewLocalPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{subs: make(map[string]map[chan *Message]struct{}), bufSize: bufSize}
}

func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for ch := range ps.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	ch := make(chan *Message, ps.bufSize)
	ps.mu.Lock()
	for _, name := range channels {
		if ps.subs[name] == nil {
			ps.subs[name] = make(map[chan *Message]struct{})
		}
		ps.subs[name][ch] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			for _, name := range channels {
				delete(ps.subs[name], ch)
				if len(ps.subs[name]) == 0 {
					delete(ps.subs, name)
				}
			}
			ps.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
