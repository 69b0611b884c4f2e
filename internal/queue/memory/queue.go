// Package memory provides an in-process delivery queue.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
)

// Queue implements queue.Queue with a FIFO slice.
type Queue struct {
	mu      sync.Mutex
	pending []string
	order   []string
	items   map[string]*models.Delivery
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{items: make(map[string]*models.Delivery)}
}

// Enqueue adds a delivery.
func (q *Queue) Enqueue(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Status = models.DeliveryStatusPending
	d.CreatedAt = time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()
	c := *d
	q.items[d.ID] = &c
	q.pending = append(q.pending, d.ID)
	q.order = append(q.order, d.ID)
	return nil
}

// Dequeue claims the oldest pending delivery.
func (q *Queue) Dequeue(ctx context.Context) (*models.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, queue.ErrNoJobs
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	d := q.items[id]
	d.Status = models.DeliveryStatusProcessing
	d.Attempts++
	c := *d
	return &c, nil
}

// Ack marks a delivery as sent.
func (q *Queue) Ack(ctx context.Context, id string) error {
	return q.finish(id, models.DeliveryStatusSent, "")
}

// Fail marks a delivery as failed.
func (q *Queue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(id, models.DeliveryStatusFailed, reason)
}

func (q *Queue) finish(id string, status models.DeliveryStatus, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok || d.Status != models.DeliveryStatusProcessing {
		return queue.ErrJobNotFound
	}
	d.Status = status
	d.LastError = reason
	return nil
}

// Get returns a copy of a delivery by ID.
func (q *Queue) Get(id string) (*models.Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return nil, false
	}
	c := *d
	return &c, true
}

// All returns copies of every delivery in enqueue order.
func (q *Queue) All() []*models.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Delivery, 0, len(q.order))
	for _, id := range q.order {
		c := *q.items[id]
		out = append(out, &c)
	}
	return out
}
