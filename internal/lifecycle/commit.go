package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/store"
)

// unit is one committed transaction. Notifications recorded through it become
// visible only if the transaction commits.
type unit struct {
	e   *Engine
	tx  store.Store
	out *notify.Outbox
}

// record writes the notifications for t inside the transaction.
func (u *unit) record(ctx context.Context, t notify.Transition) error {
	out, err := u.e.dispatcher.Record(ctx, u.tx, t)
	if err != nil {
		return fmt.Errorf("recording notifications: %w", err)
	}
	u.out.Merge(out)
	return nil
}

// commit runs fn in one store transaction. The engine never retries: a
// conflicting write surfaces to the caller. After a successful commit the
// outbox is handed to the dispatcher, detached from ctx cancellation.
func (e *Engine) commit(ctx context.Context, fn func(u *unit) error) error {
	var out *notify.Outbox
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		u := &unit{e: e, tx: tx, out: &notify.Outbox{}}
		if err := fn(u); err != nil {
			return err
		}
		out = u.out
		return nil
	})
	if err != nil {
		return err
	}
	e.dispatcher.Deliver(context.WithoutCancel(ctx), out)
	return nil
}

// storeErr maps a store error onto the lifecycle taxonomy.
func storeErr(entity, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound(entity, id)
	case errors.Is(err, store.ErrDuplicate):
		return conflict(entity, id, "already exists")
	default:
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
}

// casErr turns a failed conditional update into StaleState carrying the
// state observed by a fresh read. current is called only on ErrStaleState.
func casErr(entity, id string, err error, current func() (string, error)) error {
	if !errors.Is(err, store.ErrStaleState) {
		return storeErr(entity, id, err)
	}
	state, rerr := current()
	if rerr != nil {
		return storeErr(entity, id, rerr)
	}
	return stale(entity, id, state)
}
