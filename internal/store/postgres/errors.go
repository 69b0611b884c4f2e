package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/narvanalabs/locum/internal/store"
)

// PostgreSQL error code 23505 is unique_violation.
const uniqueViolation = "23505"

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps sql.ErrNoRows to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// casResult interprets the outcome of a conditional status update. When no
// row matched it checks whether the row exists to tell a missing entity
// from a stale expected state.
func casResult(ctx context.Context, q queryable, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table)
	if err := q.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking %s existence: %w", table, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStaleState
}
