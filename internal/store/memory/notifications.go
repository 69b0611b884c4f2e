package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

type notificationStore struct{ s scope }

func (n *notificationStore) Create(ctx context.Context, note *models.Notification) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	return n.s.do(func(d *dataset) error {
		if _, ok := d.notifications[note.ID]; ok {
			return store.ErrDuplicate
		}
		d.notifications[note.ID] = copyNotification(*note)
		return nil
	})
}

func (n *notificationStore) List(ctx context.Context, recipientID string, filter models.NotificationFilter) ([]*models.Notification, error) {
	var out []*models.Notification
	err := n.s.do(func(d *dataset) error {
		for _, note := range d.notifications {
			if note.RecipientID != recipientID {
				continue
			}
			if filter.UnreadOnly && note.IsRead {
				continue
			}
			if filter.Type != "" && note.Type != filter.Type {
				continue
			}
			if filter.Before != nil && !note.CreatedAt.Before(*filter.Before) {
				continue
			}
			c := copyNotification(note)
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return strings.Compare(out[i].ID, out[k].ID) > 0
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (n *notificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count := 0
	err := n.s.do(func(d *dataset) error {
		for _, note := range d.notifications {
			if note.RecipientID == recipientID && !note.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (n *notificationStore) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error) {
	var out models.Notification
	err := n.s.do(func(d *dataset) error {
		note, ok := d.notifications[id]
		if !ok || note.RecipientID != recipientID {
			return store.ErrNotFound
		}
		if !note.IsRead {
			note.IsRead = true
			t := at
			note.ReadAt = &t
			d.notifications[id] = note
		}
		out = copyNotification(note)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *notificationStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	changed := 0
	err := n.s.do(func(d *dataset) error {
		for id, note := range d.notifications {
			if note.RecipientID != recipientID || note.IsRead {
				continue
			}
			note.IsRead = true
			t := at
			note.ReadAt = &t
			d.notifications[id] = note
			changed++
		}
		return nil
	})
	return changed, err
}

func (n *notificationStore) Delete(ctx context.Context, recipientID, id string) error {
	return n.s.do(func(d *dataset) error {
		note, ok := d.notifications[id]
		if !ok || note.RecipientID != recipientID {
			return store.ErrNotFound
		}
		delete(d.notifications, id)
		return nil
	})
}
