// Package postgres provides a PostgreSQL-backed implementation of the delivery queue.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
)

// PostgresQueue implements queue.Queue using PostgreSQL.
type PostgresQueue struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed queue.
func NewPostgresQueue(db *sql.DB, logger *slog.Logger) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a new delivery to the delivery_queue table.
func (q *PostgresQueue) Enqueue(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Status = models.DeliveryStatusPending
	d.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO delivery_queue (id, notification_id, recipient, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`

	_, err := q.db.ExecContext(ctx, query, d.ID, d.NotificationID, d.To, d.Subject, d.Body, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery into queue: %w", err)
	}

	q.logger.Debug("enqueued delivery", "delivery_id", d.ID)
	return nil
}

// Dequeue retrieves and locks the next pending delivery.
// Uses SELECT FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*models.Delivery, error) {
	// Use a transaction to atomically select and update the delivery status
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, notification_id, recipient, subject, body, attempts, created_at
		FROM delivery_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var d models.Delivery
	err = tx.QueryRowContext(ctx, selectQuery).Scan(
		&d.ID, &d.NotificationID, &d.To, &d.Subject, &d.Body, &d.Attempts, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrNoJobs
		}
		return nil, fmt.Errorf("selecting delivery from queue: %w", err)
	}

	updateQuery := `
		UPDATE delivery_queue
		SET status = 'processing', started_at = $2, attempts = attempts + 1
		WHERE id = $1`

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, updateQuery, d.ID, now); err != nil {
		return nil, fmt.Errorf("updating delivery status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	d.Status = models.DeliveryStatusProcessing
	d.Attempts++
	q.logger.Debug("dequeued delivery", "delivery_id", d.ID)
	return &d, nil
}

// Ack marks a delivery as sent.
func (q *PostgresQueue) Ack(ctx context.Context, id string) error {
	return q.finish(ctx, id, models.DeliveryStatusSent, "")
}

// Fail marks a delivery as failed.
func (q *PostgresQueue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(ctx, id, models.DeliveryStatusFailed, reason)
}

func (q *PostgresQueue) finish(ctx context.Context, id string, status models.DeliveryStatus, reason string) error {
	query := `
		UPDATE delivery_queue
		SET status = $2, last_error = $3
		WHERE id = $1 AND status = 'processing'`

	result, err := q.db.ExecContext(ctx, query, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("updating delivery status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return queue.ErrJobNotFound
	}

	q.logger.Debug("finished delivery", "delivery_id", id, "status", status)
	return nil
}
