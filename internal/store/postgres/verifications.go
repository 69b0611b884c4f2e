package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/narvanalabs/locum/internal/models"
)

// VerificationStore implements store.VerificationStore using PostgreSQL.
type VerificationStore handle

func (s *VerificationStore) conn() queryable { return handle(*s).conn() }

const verificationColumns = `id, subject_kind, subject_id, credentials, encrypted, document_urls,
	status, rejection_reason, submitted_at, reviewed_at, reviewed_by`

// Create creates a new verification.
func (s *VerificationStore) Create(ctx context.Context, v *models.Verification) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.SubmittedAt.IsZero() {
		v.SubmittedAt = time.Now().UTC()
	}
	if v.Status == "" {
		v.Status = models.VerificationStatusPending
	}
	if v.DocumentURLs == nil {
		v.DocumentURLs = []string{}
	}

	query := `INSERT INTO verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.conn().ExecContext(ctx, query,
		v.ID, string(v.SubjectKind), v.SubjectID, v.Credentials, v.Encrypted,
		pq.Array(v.DocumentURLs), string(v.Status), v.RejectionReason,
		v.SubmittedAt, v.ReviewedAt, v.ReviewedBy,
	)
	if err != nil {
		return fmt.Errorf("inserting verification: %w", err)
	}
	return nil
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var v models.Verification
	var kind, status string
	var reason sql.NullString
	var reviewedAt sql.NullTime

	if err := row.Scan(&v.ID, &kind, &v.SubjectID, &v.Credentials, &v.Encrypted,
		pq.Array(&v.DocumentURLs), &status, &reason, &v.SubmittedAt, &reviewedAt, &v.ReviewedBy); err != nil {
		return nil, err
	}

	v.SubjectKind = models.SubjectKind(kind)
	v.Status = models.VerificationStatus(status)
	if reason.Valid {
		v.RejectionReason = &reason.String
	}
	if reviewedAt.Valid {
		v.ReviewedAt = &reviewedAt.Time
	}
	return &v, nil
}

// Get retrieves a verification by ID.
func (s *VerificationStore) Get(ctx context.Context, id string) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = $1`
	v, err := scanVerification(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// Latest retrieves the most recent verification of a subject.
func (s *VerificationStore) Latest(ctx context.Context, kind models.SubjectKind, subjectID string) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications
		WHERE subject_kind = $1 AND subject_id = $2
		ORDER BY submitted_at DESC, id DESC LIMIT 1`
	v, err := scanVerification(s.conn().QueryRowContext(ctx, query, string(kind), subjectID))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// UpdateStatus performs a compare-and-set on the verification status.
func (s *VerificationStore) UpdateStatus(ctx context.Context, v *models.Verification, expected models.VerificationStatus) error {
	if v.DocumentURLs == nil {
		v.DocumentURLs = []string{}
	}
	query := `
		UPDATE verifications
		SET status = $1, rejection_reason = $2, reviewed_at = $3, reviewed_by = $4,
			credentials = $5, encrypted = $6, document_urls = $7, submitted_at = $8
		WHERE id = $9 AND status = $10`

	res, err := s.conn().ExecContext(ctx, query,
		string(v.Status), v.RejectionReason, v.ReviewedAt, v.ReviewedBy,
		v.Credentials, v.Encrypted, pq.Array(v.DocumentURLs), v.SubmittedAt,
		v.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("updating verification status: %w", err)
	}
	return casResult(ctx, s.conn(), res, "verifications", v.ID)
}
