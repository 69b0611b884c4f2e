// Package delivery drains the outbound email queue.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/locum/internal/mailer"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
)

// Worker sends queued deliveries. Each delivery gets one attempt: a send
// failure marks it failed and it is not retried.
type Worker struct {
	queue  queue.Queue
	sender mailer.Sender
	logger *slog.Logger

	concurrency  int
	pollInterval time.Duration
	errorBackoff time.Duration
	sendTimeout  time.Duration
}

// WorkerConfig holds configuration for the delivery worker.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	SendTimeout  time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:  2,
		PollInterval: time.Second,
		SendTimeout:  15 * time.Second,
	}
}

// NewWorker creates a new delivery worker.
func NewWorker(cfg *WorkerConfig, q queue.Queue, sender mailer.Sender, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		queue:        q,
		sender:       sender,
		logger:       logger.With("component", "delivery"),
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		errorBackoff: 5 * cfg.PollInterval,
		sendTimeout:  cfg.SendTimeout,
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.pollInterval <= 0 {
		w.pollInterval = time.Second
		w.errorBackoff = 5 * time.Second
	}
	if w.sendTimeout <= 0 {
		w.sendTimeout = 15 * time.Second
	}
	return w
}

// Run processes deliveries until ctx is cancelled, then waits for in-flight
// sends to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting delivery worker", "concurrency", w.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	w.logger.Info("delivery worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessOne(ctx)
		switch {
		case err != nil:
			logger.Error("failed to dequeue delivery", "error", err)
			sleep(ctx, w.errorBackoff)
		case !processed:
			sleep(ctx, w.pollInterval)
		}
	}
}

// ProcessOne claims and sends a single delivery. It reports false when the
// queue was empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	d, err := w.queue.Dequeue(ctx)
	if errors.Is(err, queue.ErrNoJobs) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// The claim is already taken; finish it even if shutdown has begun.
	finishCtx := context.WithoutCancel(ctx)
	sendCtx, cancel := context.WithTimeout(finishCtx, w.sendTimeout)
	defer cancel()

	if err := w.send(sendCtx, d); err != nil {
		w.logger.Warn("delivery failed",
			"delivery_id", d.ID,
			"notification_id", d.NotificationID,
			"error", err,
		)
		if ferr := w.queue.Fail(finishCtx, d.ID, err.Error()); ferr != nil {
			w.logger.Error("failed to mark delivery failed", "delivery_id", d.ID, "error", ferr)
		}
		return true, nil
	}

	if err := w.queue.Ack(finishCtx, d.ID); err != nil {
		w.logger.Error("failed to ack delivery", "delivery_id", d.ID, "error", err)
	}
	w.logger.Debug("delivery sent", "delivery_id", d.ID)
	return true, nil
}

func (w *Worker) send(ctx context.Context, d *models.Delivery) error {
	return w.sender.Send(ctx, mailer.Message{
		To:      d.To,
		Subject: d.Subject,
		Body:    d.Body,
	})
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
