package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
)

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	q := New()

	if _, err := q.Dequeue(ctx); !errors.Is(err, queue.ErrNoJobs) {
		t.Fatalf("expected ErrNoJobs, got %v", err)
	}

	first := &models.Delivery{To: "a@example.com", Subject: "one"}
	second := &models.Delivery{To: "b@example.com", Subject: "two"}
	_ = q.Enqueue(ctx, first)
	_ = q.Enqueue(ctx, second)

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != first.ID || got.Status != models.DeliveryStatusProcessing || got.Attempts != 1 {
		t.Fatalf("unexpected dequeue result %+v", got)
	}
	if err := q.Ack(ctx, got.ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := q.Ack(ctx, got.ID); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound on double ack, got %v", err)
	}

	got, _ = q.Dequeue(ctx)
	if err := q.Fail(ctx, got.ID, "smtp down"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	failed, _ := q.Get(got.ID)
	if failed.Status != models.DeliveryStatusFailed || failed.LastError != "smtp down" {
		t.Fatalf("unexpected failed delivery %+v", failed)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, queue.ErrNoJobs) {
		t.Fatalf("failed delivery must not be retried, got %v", err)
	}
}
