package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrPublishFailed wraps a publish error returned by Commit after the write succeeded.
// The write is durable; callers log it and carry on.
var ErrPublishFailed = errors.New("cache: publish invalidation failed")

// ResetMutation names the synthetic event telling a subscriber to drop everything.
const ResetMutation = "reset"

// Event is the wire form of an invalidation.
type Event struct {
	ID       string    `json:"id"`
	Mutation string    `json:"mutation"`
	Targets  []Target  `json:"targets"`
	Audience Audience  `json:"audience"`
	At       time.Time `json:"at"`
}

// Reset reports whether the event is a reset.
func (e Event) Reset() bool {
	return e.Mutation == ResetMutation
}

// NewEvent converts a mutation to its event.
func NewEvent(m Mutation) Event {
	return Event{
		ID:       uuid.NewString(),
		Mutation: m.Name(),
		Targets:  m.Invalidates(),
		Audience: m.Audience(),
		At:       time.Now().UTC(),
	}
}

// ResetEvent returns an event that invalidates every key.
func ResetEvent() Event {
	return Event{ID: uuid.NewString(), Mutation: ResetMutation, At: time.Now().UTC()}
}

// Publisher delivers invalidation events. Implemented by Hub and the Kafka publisher.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Commit runs write and, only if it succeeds, publishes m's invalidation. A write error is
// returned unchanged and nothing is published. A publish error is wrapped in ErrPublishFailed.
func Commit(ctx context.Context, pub Publisher, m Mutation, write func(context.Context) error) error {
	if write != nil {
		if err := write(ctx); err != nil {
			return err
		}
	}
	return Announce(ctx, pub, m)
}

// Announce publishes m for a write that has already been made durable.
func Announce(ctx context.Context, pub Publisher, m Mutation) error {
	if pub == nil {
		return nil
	}
	if err := pub.Publish(ctx, NewEvent(m)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, m.Name(), err)
	}
	return nil
}

// Fanout publishes to every publisher in order. Local delivery goes first so the writing session
// reads its own write; remote delivery of the same event again is harmless.
type Fanout []Publisher

// Publish implements Publisher. Errors are joined; a failing publisher does not stop the rest.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
