package stream

import (
	"context"
	"testing"
	"time"

	"conforma.org/internal/workflow"
)

func TestPublishScopedToOrganization(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	org1 := s.Subscribe(ctx, "org-1")
	org2 := s.Subscribe(ctx, "org-2")
	all := s.Subscribe(ctx, "")

	evt := workflow.Event{Type: "assessment.status", OrganizationID: "org-1", Status: "IN_PROGRESS"}
	s.Publish(evt)

	select {
	case got := <-org1:
		if got.Type != evt.Type || got.Status != evt.Status {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("org-1 subscriber did not receive its event")
	}
	select {
	case got := <-org2:
		t.Fatalf("org-2 received a foreign event: %+v", got)
	default:
	}
	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("unscoped subscriber did not receive the event")
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "org-1")
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context end")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx, "org-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.Publish(workflow.Event{OrganizationID: "org-1"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
