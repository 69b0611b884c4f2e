package postgres

import (
	"context"
	"fmt"

	"github.com/narvanalabs/locum/internal/models"
)

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore handle

func (s *AccountStore) conn() queryable { return handle(*s).conn() }

func (s *AccountStore) getOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	var a models.Account
	var role string
	err := s.conn().QueryRowContext(ctx,
		`SELECT id, email, name, role FROM accounts WHERE `+where, arg,
	).Scan(&a.ID, &a.Email, &a.Name, &role)
	if err != nil {
		return nil, notFound(err)
	}
	a.Role = models.ActorRole(role)
	return &a, nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.getOne(ctx, "id = $1", id)
}

// GetByEmail retrieves an account by email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getOne(ctx, "lower(email) = lower($1)", email)
}

// ListByRole retrieves accounts with the given role.
func (s *AccountStore) ListByRole(ctx context.Context, role models.ActorRole) ([]*models.Account, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT id, email, name, role FROM accounts WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		var a models.Account
		var r string
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &r); err != nil {
			return nil, err
		}
		a.Role = models.ActorRole(r)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Upsert creates or replaces an account.
func (s *AccountStore) Upsert(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, name, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role`
	if _, err := s.conn().ExecContext(ctx, query, a.ID, a.Email, a.Name, string(a.Role)); err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}
