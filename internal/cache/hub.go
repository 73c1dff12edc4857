package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"org-access-core/backend/internal/telemetry/metrics"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 64

// Visibility decides whether a user may hear about changes inside an organization. It reads the
// membership directory live. Implemented by *rbac.Guard.
type Visibility interface {
	CanSeeOrganization(ctx context.Context, userID, orgID string) (bool, error)
}

// Hub fans out invalidation events to in-process subscribers and sinks. Publish never blocks on a
// subscriber: one whose queue is full loses its oldest event and receives a reset instead. Sinks
// are applied synchronously before Publish returns.
//
// Sinks are server-side views and see every event addressed to their session. Subscribers feed
// clients, so organization-scoped events reach them only through Visibility.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	sinks      map[*sink]struct{}
	buffer     int
	visibility Visibility
	metrics    *metrics.Instruments
	log        *zap.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSubscriberBuffer sets the per-subscriber queue length.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithVisibility sets the organization check for subscribers. Without one, organization-scoped
// events reach only their subject.
func WithVisibility(v Visibility) HubOption {
	return func(h *Hub) { h.visibility = v }
}

// WithHubMetrics records published and dropped events.
func WithHubMetrics(inst *metrics.Instruments) HubOption {
	return func(h *Hub) { h.metrics = inst }
}

// WithHubLogger sets the logger.
func WithHubLogger(log *zap.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[*Subscription]struct{}),
		sinks:  make(map[*sink]struct{}),
		buffer: DefaultSubscriberBuffer,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one subscriber's event queue.
type Subscription struct {
	SessionID string
	UserID    string

	hub    *Hub
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// Events returns the receive side of the queue. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber for the given session and user.
func (h *Hub) Subscribe(sessionID, userID string) *Subscription {
	s := &Subscription{
		SessionID: sessionID,
		UserID:    userID,
		hub:       h,
		ch:        make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

type sink struct {
	sessionID string
	userID    string
	apply     func(Event)
}

// Attach registers apply to be called synchronously for every event addressed to the session.
// apply must not call back into the Hub. The returned func detaches it.
func (h *Hub) Attach(sessionID, userID string, apply func(Event)) (detach func()) {
	k := &sink{sessionID: sessionID, userID: userID, apply: apply}
	h.mu.Lock()
	h.sinks[k] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.sinks, k)
		h.mu.Unlock()
	}
}

// Subscribers returns the current subscriber and sink count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs) + len(h.sinks)
}

// Publish implements Publisher. It delivers ev to every subscriber in its audience.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	subs := h.addressed(ev)
	var seen map[string]bool
	if !ev.Reset() && ev.Audience.OrgScoped() {
		seen = make(map[string]bool)
	}
	for _, s := range subs {
		if seen != nil && !h.visible(ctx, ev.Audience, s.UserID, seen) {
			continue
		}
		if !s.offer(ev) {
			h.metrics.RecordDropped(ctx)
			h.log.Debug("cache: subscriber lagging, sent reset",
				zap.String("session_id", s.SessionID), zap.String("mutation", ev.Mutation))
		}
	}
	if !ev.Reset() {
		h.metrics.RecordInvalidation(ctx, ev.Mutation)
	}
	return nil
}

// addressed applies ev to its sinks and returns the subscribers in its audience. Visibility is
// checked afterwards so directory reads happen outside the lock.
func (h *Hub) addressed(ev Event) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k := range h.sinks {
		if ev.Reset() || ev.Audience.Includes(k.sessionID, k.userID) {
			k.apply(ev)
		}
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		if ev.Reset() || ev.Audience.Includes(s.SessionID, s.UserID) {
			subs = append(subs, s)
		}
	}
	return subs
}

// visible reports whether userID may receive an organization-scoped event. Results are memoized
// per Publish in seen. A failed check withholds the event.
func (h *Hub) visible(ctx context.Context, a Audience, userID string, seen map[string]bool) bool {
	if a.Subject != "" && a.Subject == userID {
		return true
	}
	if ok, checked := seen[userID]; checked {
		return ok
	}
	ok := false
	if h.visibility != nil {
		var err error
		ok, err = h.visibility.CanSeeOrganization(ctx, userID, a.OrgID)
		if err != nil {
			h.log.Warn("cache: organization visibility check failed",
				zap.String("user_id", userID), zap.String("org_id", a.OrgID), zap.Error(err))
			ok = false
		}
	}
	seen[userID] = ok
	return ok
}

// offer enqueues ev without blocking. When the queue is full the oldest event is replaced by a
// reset queued after the remaining ones, and offer returns false.
func (s *Subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ResetEvent():
	default:
	}
	return false
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
