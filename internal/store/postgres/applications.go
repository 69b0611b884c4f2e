package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// ApplicationStore implements store.ApplicationStore using PostgreSQL.
type ApplicationStore handle

func (s *ApplicationStore) conn() queryable { return handle(*s).conn() }

const applicationColumns = `id, job_id, doctor_id, status, applied_at, cancellation_reason, reviewed_at, updated_at`

// storedStatuses lists the raw column values that represent a canonical
// status. Older rows may still carry the ACCEPTED spelling.
func storedStatuses(s models.ApplicationStatus) []string {
	if s == models.ApplicationStatusEmployerApproved {
		return []string{string(s), "ACCEPTED"}
	}
	return []string{string(s)}
}

// Create creates a new application.
func (s *ApplicationStore) Create(ctx context.Context, app *models.JobApplication) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now().UTC()
	}
	app.UpdatedAt = app.AppliedAt
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}

	query := `INSERT INTO job_applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.conn().ExecContext(ctx, query,
		app.ID, app.JobID, app.DoctorID, string(app.Status), app.AppliedAt,
		app.CancellationReason, app.ReviewedAt, app.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting application: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.JobApplication, error) {
	var app models.JobApplication
	var status string
	var reason sql.NullString
	var reviewedAt sql.NullTime

	if err := row.Scan(&app.ID, &app.JobID, &app.DoctorID, &status, &app.AppliedAt,
		&reason, &reviewedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := models.ParseApplicationStatus(status)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", app.ID, err)
	}
	app.Status = parsed
	if reason.Valid {
		app.CancellationReason = &reason.String
	}
	if reviewedAt.Valid {
		app.ReviewedAt = &reviewedAt.Time
	}
	return &app, nil
}

// Get retrieves an application by ID.
func (s *ApplicationStore) Get(ctx context.Context, id string) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE id = $1`
	app, err := scanApplication(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

// ListByJob retrieves all applications for a job.
func (s *ApplicationStore) ListByJob(ctx context.Context, jobID string) ([]*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
		WHERE job_id = $1 ORDER BY applied_at ASC, id ASC`

	rows, err := s.conn().QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.JobApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// FindActive returns the doctor's live application on a job.
func (s *ApplicationStore) FindActive(ctx context.Context, jobID, doctorID string) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
		WHERE job_id = $1 AND doctor_id = $2
		AND status IN ('PENDING', 'EMPLOYER_APPROVED', 'ACCEPTED', 'DOCTOR_CONFIRMED')
		LIMIT 1`
	app, err := scanApplication(s.conn().QueryRowContext(ctx, query, jobID, doctorID))
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

// UpdateStatus performs a compare-and-set on the application status.
func (s *ApplicationStore) UpdateStatus(ctx context.Context, app *models.JobApplication, expected models.ApplicationStatus) error {
	app.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE job_applications
		SET status = $1, cancellation_reason = $2, reviewed_at = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6)`

	res, err := s.conn().ExecContext(ctx, query,
		string(app.Status), app.CancellationReason, app.ReviewedAt, app.UpdatedAt,
		app.ID, pq.Array(storedStatuses(expected)),
	)
	if err != nil {
		return fmt.Errorf("updating application status: %w", err)
	}
	return casResult(ctx, s.conn(), res, "job_applications", app.ID)
}

// DeleteByJob removes the terminal applications of a job. A live row left
// behind makes the job delete fail on the foreign key.
func (s *ApplicationStore) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	res, err := s.conn().ExecContext(ctx,
		`DELETE FROM job_applications WHERE job_id = $1 AND status IN ('REJECTED', 'CANCELLED', 'COMPLETED')`,
		jobID)
	if err != nil {
		return 0, fmt.Errorf("deleting applications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}
