package postgres

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_PostgresEnqueuePullMark(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "checkout",
		AggregateID:   "cs_outbox_1",
		EventType:     "checkout.completed",
		Payload:       []byte(`{"session_id":"cs_outbox_1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected generated outbox id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	pending, err = repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after sent: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestOutboxRepository_PostgresMarkUnknownID(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("07a0f1d2-0000-0000-0000-000000000000"); err == nil {
		t.Fatal("expected error for unknown outbox id")
	}
}

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	events := []domain.TimelineEvent{
		{SessionID: "cs_tl_1", OwnerRef: "owner-1", Type: "checkout.started"},
		{SessionID: "cs_tl_1", OwnerRef: "owner-1", Type: "checkout.failed", Reason: "gateway_unavailable"},
		{SessionID: "cs_tl_other", OwnerRef: "owner-2", Type: "checkout.started"},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append %s: %v", event.Type, err)
		}
	}

	listed, err := repo.List("cs_tl_1")
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events, got %d", len(listed))
	}
	if listed[0].Type != "checkout.started" || listed[1].Type != "checkout.failed" {
		t.Fatalf("unexpected event order: %+v", listed)
	}
	if listed[1].Reason != "gateway_unavailable" {
		t.Fatalf("unexpected failure reason: %q", listed[1].Reason)
	}
	if listed[0].Occurred.IsZero() {
		t.Fatal("expected occurred timestamp to be filled")
	}
}
