// Package sweeper periodically expires lapsed staff invitations.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs the sweep every five minutes.
const DefaultSpec = "@every 5m"

// Expirer moves PENDING invitations past their expiry to EXPIRED.
type Expirer interface {
	ExpireInvitations(ctx context.Context, now time.Time) (int, error)
}

// Sweeper wraps robfig/cron and runs the invitation expiry sweep.
type Sweeper struct {
	cron    *cron.Cron
	expirer Expirer
	spec    string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Sweeper firing on spec (a cron expression or "@every"
// descriptor). An empty spec uses DefaultSpec.
func New(expirer Expirer, spec string, logger *slog.Logger) *Sweeper {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expirer: expirer,
		spec:    spec,
		logger:  logger.With("component", "sweeper"),
		now:     time.Now,
	}
}

// Run registers the sweep, runs it once immediately, and blocks until ctx
// is cancelled. The cron scheduler is stopped before Run returns.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("scheduling invitation sweep %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("invitation sweeper started", "spec", s.spec)
	s.Sweep(ctx)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("invitation sweeper stopped")
	return nil
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.expirer.ExpireInvitations(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("invitation sweep failed", "error", err, "expired", n)
		return
	}
	if n > 0 {
		s.logger.Info("invitations expired", "count", n)
	}
}
