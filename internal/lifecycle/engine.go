// Package lifecycle implements the state machines for jobs, applications,
// verifications and staff invitations.
//
// Every operation authorizes the actor, plans the transition against the
// state read inside a transaction, and commits it with a conditional update
// keyed by the expected current state. Notification records are written in
// the same transaction; external nudges go out after commit.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/invite"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/secrets"
	"github.com/narvanalabs/locum/internal/store"
)

// Deps holds the engine's collaborators. Store and Dispatcher are required.
type Deps struct {
	Store      store.Store
	Dispatcher *notify.Dispatcher
	Issuer     *invite.Issuer
	Sealer     *secrets.Sealer
	RBAC       *auth.RBACService
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine runs lifecycle transitions.
type Engine struct {
	store      store.Store
	dispatcher *notify.Dispatcher
	issuer     *invite.Issuer
	sealer     *secrets.Sealer
	guard      guard
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an engine from deps, filling in defaults for the optional
// collaborators.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("lifecycle: store is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("lifecycle: dispatcher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Issuer == nil {
		deps.Issuer = invite.NewIssuer(invite.DefaultTTL)
	}
	if deps.Sealer == nil {
		s, err := secrets.NewSealer(&secrets.Config{}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating credential sealer: %w", err)
		}
		deps.Sealer = s
	}
	if deps.RBAC == nil {
		deps.RBAC = auth.NewRBACService(logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		issuer:     deps.Issuer,
		sealer:     deps.Sealer,
		guard:      guard{rbac: deps.RBAC},
		logger:     logger.With("component", "lifecycle"),
		now:        deps.Now,
	}, nil
}

func (e *Engine) clock() time.Time { return e.now().UTC() }
