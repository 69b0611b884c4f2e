// Package queue provides the outbound email delivery queue.
package queue

import (
	"context"
	"errors"

	"github.com/narvanalabs/locum/internal/models"
)

// Common errors returned by queue operations.
var (
	// ErrNoJobs is returned when no deliveries are available in the queue.
	ErrNoJobs = errors.New("no deliveries available")
	// ErrJobNotFound is returned when a delivery cannot be found in the expected state.
	ErrJobNotFound = errors.New("delivery not found")
)

// Queue defines the interface for delivery queue operations.
// Deliveries are at-most-once: a failed delivery is recorded, not retried.
type Queue interface {
	// Enqueue adds a new pending delivery.
	Enqueue(ctx context.Context, d *models.Delivery) error

	// Dequeue claims the oldest pending delivery and marks it processing.
	// Returns ErrNoJobs if no deliveries are available.
	Dequeue(ctx context.Context) (*models.Delivery, error)

	// Ack marks a processing delivery as sent.
	Ack(ctx context.Context, id string) error

	// Fail marks a processing delivery as failed with the given reason.
	Fail(ctx context.Context, id string, reason string) error
}
