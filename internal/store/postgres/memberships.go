package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/locum/internal/models"
)

// MembershipStore implements store.MembershipStore using PostgreSQL.
type MembershipStore handle

func (s *MembershipStore) conn() queryable { return handle(*s).conn() }

// Get retrieves a membership.
func (s *MembershipStore) Get(ctx context.Context, facilityID, userID string) (*models.FacilityMembership, error) {
	query := `
		SELECT facility_id, user_id, role, active, created_at
		FROM facility_memberships WHERE facility_id = $1 AND user_id = $2`

	var m models.FacilityMembership
	var role string
	err := s.conn().QueryRowContext(ctx, query, facilityID, userID).Scan(
		&m.FacilityID, &m.UserID, &role, &m.Active, &m.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	m.Role = models.FacilityRole(role)
	return &m, nil
}

// Upsert creates or replaces a membership.
func (s *MembershipStore) Upsert(ctx context.Context, m *models.FacilityMembership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO facility_memberships (facility_id, user_id, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (facility_id, user_id) DO UPDATE SET role = EXCLUDED.role, active = EXCLUDED.active`

	if _, err := s.conn().ExecContext(ctx, query, m.FacilityID, m.UserID, string(m.Role), m.Active, m.CreatedAt); err != nil {
		return fmt.Errorf("upserting membership: %w", err)
	}
	return nil
}

// ListActive retrieves the active members of a facility.
func (s *MembershipStore) ListActive(ctx context.Context, facilityID string) ([]*models.FacilityMembership, error) {
	query := `
		SELECT facility_id, user_id, role, active, created_at
		FROM facility_memberships WHERE facility_id = $1 AND active = TRUE
		ORDER BY user_id`

	rows, err := s.conn().QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.FacilityMembership
	for rows.Next() {
		var m models.FacilityMembership
		var role string
		if err := rows.Scan(&m.FacilityID, &m.UserID, &role, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.FacilityRole(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}
