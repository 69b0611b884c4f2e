package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
)

// Subscriber receives live notifications for one recipient.
type Subscriber struct {
	ID          string
	RecipientID string
	Ch          chan *models.Notification
	CreatedAt   time.Time
}

// Broker fans committed notifications out to connected clients.
// Publishing never blocks: a full subscriber channel drops the message.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber // subscriber ID -> subscriber
	logger      *slog.Logger
}

// NewBroker creates a new notification broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a live stream for recipientID.
func (b *Broker) Subscribe(ctx context.Context, recipientID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Ch:          make(chan *models.Notification, 32),
		CreatedAt:   time.Now(),
	}

	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "recipient_id", recipientID)

	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish sends a notification to every subscriber of its recipient.
// It reports how many subscribers were skipped because their buffer was full.
func (b *Broker) Publish(n *models.Notification) int {
	if n == nil {
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, sub := range b.subscribers {
		if sub.RecipientID != n.RecipientID {
			continue
		}
		select {
		case sub.Ch <- n:
		default:
			dropped++
		}
	}
	return dropped
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
