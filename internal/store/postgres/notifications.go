package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// NotificationStore implements store.NotificationStore using PostgreSQL.
type NotificationStore handle

func (s *NotificationStore) conn() queryable { return handle(*s).conn() }

const notificationColumns = `id, recipient_id, type, title, message, link, is_read, read_at,
	metadata, entity_kind, entity_id, created_at`

// Create creates a new notification.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(n.Metadata) > 0 {
		metadata = []byte(n.Metadata)
	}

	query := `INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.conn().ExecContext(ctx, query,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, n.Link,
		n.IsRead, n.ReadAt, metadata, string(n.EntityKind), n.EntityID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var typ, kind string
	var readAt sql.NullTime
	var metadata []byte

	if err := row.Scan(&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &n.Link,
		&n.IsRead, &readAt, &metadata, &kind, &n.EntityID, &n.CreatedAt); err != nil {
		return nil, err
	}

	n.Type = models.NotificationType(typ)
	n.EntityKind = models.EntityKind(kind)
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	if len(metadata) > 0 {
		n.Metadata = metadata
	}
	return &n, nil
}

// List retrieves a recipient's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, recipientID string, filter models.NotificationFilter) ([]*models.Notification, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`)
	args := []any{recipientID}

	if filter.UnreadOnly {
		b.WriteString(` AND is_read = FALSE`)
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		fmt.Fprintf(&b, ` AND type = $%d`, len(args))
	}
	if filter.Before != nil {
		args = append(args, *filter.Before)
		fmt.Fprintf(&b, ` AND created_at < $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	rows, err := s.conn().QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread notifications for a recipient.
func (s *NotificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. A second call leaves read_at untouched.
func (s *NotificationStore) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns

	n, err := scanNotification(s.conn().QueryRowContext(ctx, query, id, recipientID, at))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of a recipient.
func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	res, err := s.conn().ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// Delete removes one notification.
func (s *NotificationStore) Delete(ctx context.Context, recipientID, id string) error {
	res, err := s.conn().ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
