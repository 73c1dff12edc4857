package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClientSize bounds a Client when no size is given.
const DefaultClientSize = 512

// LoadFunc fetches a view on a cache miss.
type LoadFunc func(ctx context.Context) (any, error)

// Client is one session's view cache. Reads populate it; invalidations evict from it.
// A load that overlaps an invalidation is returned to its caller but not cached.
type Client struct {
	mu    sync.Mutex
	views *lru.Cache[Key, any]
	gen   uint64
}

// NewClient returns a Client holding at most size views.
func NewClient(size int) (*Client, error) {
	if size <= 0 {
		size = DefaultClientSize
	}
	views, err := lru.New[Key, any](size)
	if err != nil {
		return nil, fmt.Errorf("cache: new client: %w", err)
	}
	return &Client{views: views}, nil
}

// Read returns the cached view for key, or calls load and caches its result.
func (c *Client) Read(ctx context.Context, key Key, load LoadFunc) (any, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("cache: invalid key %q", key)
	}
	c.mu.Lock()
	if v, ok := c.views.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.views.Add(key, v)
	}
	c.mu.Unlock()
	return v, nil
}

// Read is the typed form of Client.Read.
func Read[T any](ctx context.Context, c *Client, key Key, load func(context.Context) (T, error)) (T, error) {
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) { return load(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: %s holds %T", key, v)
	}
	return t, nil
}

// Peek reports whether key is cached, without touching recency.
func (c *Client) Peek(key Key) (any, bool) {
	return c.views.Peek(key)
}

// Len returns the number of cached views.
func (c *Client) Len() int {
	return c.views.Len()
}

// Invalidate evicts every view selected by target and returns how many were evicted.
func (c *Client) Invalidate(target Target) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.evict(target)
}

// Apply evicts the views selected by ev. A reset evicts everything.
func (c *Client) Apply(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if ev.Reset() {
		c.views.Purge()
		return
	}
	for _, t := range ev.Targets {
		c.evict(t)
	}
}

// Follow applies events from sub until ctx is done or sub is closed.
func (c *Client) Follow(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.Apply(ev)
		}
	}
}

func (c *Client) evict(target Target) int {
	n := 0
	for _, k := range c.views.Keys() {
		if target.Matches(k) {
			c.views.Remove(k)
			n++
		}
	}
	return n
}
