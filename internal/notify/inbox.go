package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// Inbox limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another recipient.
var ErrNotFound = errors.New("notification not found")

// ErrInvalidFilter is returned for a listing filter naming an unknown type.
var ErrInvalidFilter = errors.New("invalid notification filter")

// Inbox serves a recipient's in-app notifications. Every operation is scoped
// to the calling actor.
type Inbox struct {
	store store.Store
	now   func() time.Time
}

// NewInbox creates an inbox backed by st.
func NewInbox(st store.Store) *Inbox {
	return &Inbox{store: st, now: time.Now}
}

// List returns the actor's notifications, newest first.
func (i *Inbox) List(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]*models.Notification, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, filter.Type)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	notes, err := i.store.Notifications().List(ctx, actor.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	if notes == nil {
		notes = []*models.Notification{}
	}
	return notes, nil
}

// UnreadCount returns how many of the actor's notifications are unread.
func (i *Inbox) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	return i.store.Notifications().UnreadCount(ctx, actor.ID)
}

// MarkRead marks one notification read. Marking an already-read notification
// succeeds and leaves it unchanged.
func (i *Inbox) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Notification, error) {
	n, err := i.store.Notifications().MarkRead(ctx, actor.ID, id, i.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return n, err
}

// MarkAllRead marks every unread notification of the actor and returns how
// many changed. A second call returns zero.
func (i *Inbox) MarkAllRead(ctx context.Context, actor models.Actor) (int, error) {
	return i.store.Notifications().MarkAllRead(ctx, actor.ID, i.now().UTC())
}

// Delete permanently removes one of the actor's notifications.
func (i *Inbox) Delete(ctx context.Context, actor models.Actor, id string) error {
	err := i.store.Notifications().Delete(ctx, actor.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
