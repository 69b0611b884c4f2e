package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL.
type JobStore handle

func (s *JobStore) conn() queryable { return handle(*s).conn() }

const jobColumns = `id, facility_id, title, specialty, urgency, starts_at, ends_at,
	hourly_rate_cents, currency, status, created_at, updated_at`

// Create creates a new job.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = models.JobStatusOpen
	}

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.conn().ExecContext(ctx, query,
		job.ID, job.FacilityID, job.Title, job.Specialty, string(job.Urgency),
		job.StartsAt, job.EndsAt, job.HourlyRateCents, job.Currency,
		string(job.Status), job.CreatedAt, job.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.get(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetForUpdate retrieves a job and holds its row lock until the
// transaction ends. Outside a transaction the lock is released at once.
func (s *JobStore) GetForUpdate(ctx context.Context, id string) (*models.Job, error) {
	return s.get(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

func (s *JobStore) get(ctx context.Context, query, id string) (*models.Job, error) {
	var job models.Job
	var urgency, status string
	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.FacilityID, &job.Title, &job.Specialty, &urgency,
		&job.StartsAt, &job.EndsAt, &job.HourlyRateCents, &job.Currency,
		&status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	job.Urgency = models.Urgency(urgency)
	job.Status = models.JobStatus(status)
	return &job, nil
}

// UpdateStatus performs a compare-and-set on the job status.
func (s *JobStore) UpdateStatus(ctx context.Context, job *models.Job, expected models.JobStatus) error {
	job.UpdatedAt = time.Now().UTC()
	query := `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	res, err := s.conn().ExecContext(ctx, query, string(job.Status), job.UpdatedAt, job.ID, string(expected))
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return casResult(ctx, s.conn(), res, "jobs", job.ID)
}

// Delete removes a job.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn().ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
