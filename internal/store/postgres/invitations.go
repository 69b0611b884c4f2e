package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore handle

func (s *InvitationStore) conn() queryable { return handle(*s).conn() }

const invitationColumns = `id, facility_id, invitee_email, role, token_hash, status,
	invited_by, expires_at, responded_at, created_at`

// Create creates a new invitation.
func (s *InvitationStore) Create(ctx context.Context, inv *models.StaffInvitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationStatusPending
	}

	query := `INSERT INTO staff_invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.conn().ExecContext(ctx, query,
		inv.ID, inv.FacilityID, inv.InviteeEmail, string(inv.Role), inv.TokenHash,
		string(inv.Status), inv.InvitedBy, inv.ExpiresAt, inv.RespondedAt, inv.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting invitation: %w", err)
	}
	return nil
}

func scanInvitation(row rowScanner) (*models.StaffInvitation, error) {
	var inv models.StaffInvitation
	var role, status string
	var respondedAt sql.NullTime

	if err := row.Scan(&inv.ID, &inv.FacilityID, &inv.InviteeEmail, &role, &inv.TokenHash,
		&status, &inv.InvitedBy, &inv.ExpiresAt, &respondedAt, &inv.CreatedAt); err != nil {
		return nil, err
	}

	inv.Role = models.FacilityRole(role)
	inv.Status = models.InvitationStatus(status)
	if respondedAt.Valid {
		inv.RespondedAt = &respondedAt.Time
	}
	return &inv, nil
}

// Get retrieves an invitation by ID.
func (s *InvitationStore) Get(ctx context.Context, id string) (*models.StaffInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM staff_invitations WHERE id = $1`
	inv, err := scanInvitation(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// GetByTokenHash retrieves an invitation by its token hash.
func (s *InvitationStore) GetByTokenHash(ctx context.Context, hash string) (*models.StaffInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM staff_invitations WHERE token_hash = $1`
	inv, err := scanInvitation(s.conn().QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// UpdateStatus performs a compare-and-set on the invitation status,
// optionally requiring the invitation to still be unexpired at validAt.
func (s *InvitationStore) UpdateStatus(ctx context.Context, inv *models.StaffInvitation, expected models.InvitationStatus, validAt *time.Time) error {
	query := `
		UPDATE staff_invitations
		SET status = $1, responded_at = $2
		WHERE id = $3 AND status = $4 AND ($5::timestamptz IS NULL OR expires_at > $5)`

	var at sql.NullTime
	if validAt != nil {
		at = sql.NullTime{Time: *validAt, Valid: true}
	}

	res, err := s.conn().ExecContext(ctx, query,
		string(inv.Status), inv.RespondedAt, inv.ID, string(expected), at,
	)
	if err != nil {
		return fmt.Errorf("updating invitation status: %w", err)
	}
	return casResult(ctx, s.conn(), res, "staff_invitations", inv.ID)
}

// ListExpired returns pending invitations past their expiry.
func (s *InvitationStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.StaffInvitation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + invitationColumns + ` FROM staff_invitations
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2`

	rows, err := s.conn().QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired invitations: %w", err)
	}
	defer rows.Close()

	var invs []*models.StaffInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}
