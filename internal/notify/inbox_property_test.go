package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store/memory"
)

func fill(t *testing.T, st *memory.Store, recipient string, n int) []string {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		note := &models.Notification{
			ID:          fmt.Sprintf("%s-%d", recipient, i),
			RecipientID: recipient,
			Type:        models.NotificationApplicationApproved,
			Title:       "t",
			Message:     "m",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.Notifications().Create(context.Background(), note); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, note.ID)
	}
	return ids
}

// Marking all read twice changes nothing the second time, and the first call
// reports exactly the unread count.
func TestMarkAllReadIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("MarkAllRead reports unread count once then zero", prop.ForAll(
		func(total, preRead int) bool {
			if preRead > total {
				preRead = total
			}
			ctx := context.Background()
			st := memory.New()
			inbox := NewInbox(st)
			doc := models.Actor{ID: "doc", Role: models.ActorRoleDoctor}
			ids := fill(t, st, doc.ID, total)
			fill(t, st, "someone-else", 3)

			for _, id := range ids[:preRead] {
				if _, err := inbox.MarkRead(ctx, doc, id); err != nil {
					return false
				}
			}
			first, err := inbox.MarkAllRead(ctx, doc)
			if err != nil || first != total-preRead {
				return false
			}
			second, err := inbox.MarkAllRead(ctx, doc)
			if err != nil || second != 0 {
				return false
			}
			other, _ := inbox.UnreadCount(ctx, models.Actor{ID: "someone-else"})
			return other == 3
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestMarkReadKeepsFirstReadTime(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	inbox := NewInbox(st)
	doc := models.Actor{ID: "doc"}
	ids := fill(t, st, doc.ID, 1)

	first := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	inbox.now = func() time.Time { return first }
	if _, err := inbox.MarkRead(ctx, doc, ids[0]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	inbox.now = func() time.Time { return first.Add(time.Hour) }
	n, err := inbox.MarkRead(ctx, doc, ids[0])
	if err != nil {
		t.Fatalf("MarkRead again: %v", err)
	}
	if n.ReadAt == nil || !n.ReadAt.Equal(first) {
		t.Fatalf("read_at changed on second mark: %v", n.ReadAt)
	}
}

func TestInboxHidesOtherRecipients(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	inbox := NewInbox(st)
	theirs := fill(t, st, "owner", 1)
	doc := models.Actor{ID: "doc"}

	if _, err := inbox.MarkRead(ctx, doc, theirs[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := inbox.Delete(ctx, doc, theirs[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	list, err := inbox.List(ctx, doc, models.NotificationFilter{})
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
}

func TestInboxListNewestFirstWithCursor(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	inbox := NewInbox(st)
	doc := models.Actor{ID: "doc"}
	fill(t, st, doc.ID, 5)

	page, err := inbox.List(ctx, doc, models.NotificationFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].ID != "doc-4" || page[1].ID != "doc-3" {
		t.Fatalf("unexpected first page: %v", page)
	}
	before := page[1].CreatedAt
	next, _ := inbox.List(ctx, doc, models.NotificationFilter{Limit: 2, Before: &before})
	if len(next) != 2 || next[0].ID != "doc-2" {
		t.Fatalf("unexpected second page: %v", next)
	}

	if _, err := inbox.List(ctx, doc, models.NotificationFilter{Type: "bogus"}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatal("expected unknown type to fail")
	}
}
