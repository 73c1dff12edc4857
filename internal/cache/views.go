package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Views holds a Client per session, attached to the hub so invalidations land before Publish
// returns. The least recently used session is detached once maxSessions is reached.
type Views struct {
	hub        *Hub
	clientSize int

	mu       sync.Mutex
	sessions *lru.Cache[string, *sessionView]
}

type sessionView struct {
	client *Client
	detach func()
}

// NewViews returns a registry over hub.
func NewViews(hub *Hub, maxSessions, clientSize int) (*Views, error) {
	if maxSessions <= 0 {
		maxSessions = 1024
	}
	sessions, err := lru.NewWithEvict[string, *sessionView](maxSessions, func(_ string, v *sessionView) {
		v.detach()
	})
	if err != nil {
		return nil, fmt.Errorf("cache: new views: %w", err)
	}
	return &Views{hub: hub, clientSize: clientSize, sessions: sessions}, nil
}

// For returns the Client for a session, creating and attaching it on first use.
func (v *Views) For(sessionID, userID string) (*Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sv, ok := v.sessions.Get(sessionID); ok {
		return sv.client, nil
	}
	client, err := NewClient(v.clientSize)
	if err != nil {
		return nil, err
	}
	v.sessions.Add(sessionID, &sessionView{
		client: client,
		detach: v.hub.Attach(sessionID, userID, client.Apply),
	})
	return client, nil
}

// Drop discards a session's views, e.g. on sign-out.
func (v *Views) Drop(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions.Remove(sessionID)
}

// Len returns the number of sessions with views.
func (v *Views) Len() int {
	return v.sessions.Len()
}

// Close detaches every session.
func (v *Views) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions.Purge()
}

// ReadView reads key through the session's Client. With no Views it calls load directly.
func ReadView[T any](ctx context.Context, v *Views, sessionID, userID string, key Key, load func(context.Context) (T, error)) (T, error) {
	if v == nil {
		return load(ctx)
	}
	client, err := v.For(sessionID, userID)
	if err != nil {
		return load(ctx)
	}
	return Read(ctx, client, key, load)
}
