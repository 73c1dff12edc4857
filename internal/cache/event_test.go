package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func TestCommit_PublishesAfterWrite(t *testing.T) {
	pub := &recordingPublisher{}
	var order []string
	err := Commit(context.Background(), pub, MembershipRemoved{OrgID: "org-1"}, func(context.Context) error {
		if len(pub.events) != 0 {
			t.Error("published before write")
		}
		order = append(order, "write")
		return nil
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(order) != 1 || len(pub.events) != 1 {
		t.Fatalf("writes=%d events=%d, want 1 and 1", len(order), len(pub.events))
	}
	ev := pub.events[0]
	if ev.Mutation != "membership_removed" || ev.ID == "" || ev.At.IsZero() {
		t.Errorf("event = %+v, want populated membership_removed", ev)
	}
}

func TestCommit_WriteFailurePublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	writeErr := errors.New("unique violation")
	err := Commit(context.Background(), pub, UserRoleChanged{UserID: "u1"}, func(context.Context) error { return writeErr })
	if !errors.Is(err, writeErr) {
		t.Fatalf("err = %v, want write error", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events after failed write", len(pub.events))
	}
}

func TestCommit_PublishFailureIsDistinguishable(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	err := Commit(context.Background(), pub, UserRoleChanged{UserID: "u1"}, func(context.Context) error { return nil })
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}
}

func TestCommit_NilPublisher(t *testing.T) {
	if err := Commit(context.Background(), nil, UserRoleChanged{}, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Commit with nil publisher: %v", err)
	}
}

func TestFanout(t *testing.T) {
	local := &recordingPublisher{}
	remote := &recordingPublisher{err: errors.New("broker down")}
	after := &recordingPublisher{}
	fan := Fanout{local, nil, remote, after}

	err := Commit(context.Background(), fan, OrganizationDeleted{OrgID: "org-1"}, nil)
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("error = %v, want ErrPublishFailed", err)
	}
	if len(local.events) != 1 || len(after.events) != 1 {
		t.Errorf("local=%d after=%d, want both delivered", len(local.events), len(after.events))
	}
}
