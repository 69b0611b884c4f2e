package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

type jobStore struct{ s scope }

func (j *jobStore) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = models.JobStatusOpen
	}
	return j.s.do(func(d *dataset) error {
		if _, ok := d.jobs[job.ID]; ok {
			return store.ErrDuplicate
		}
		d.jobs[job.ID] = *job
		return nil
	})
}

// GetForUpdate is Get: transactions already run one at a time.
func (j *jobStore) GetForUpdate(ctx context.Context, id string) (*models.Job, error) {
	return j.Get(ctx, id)
}

func (j *jobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var out models.Job
	err := j.s.do(func(d *dataset) error {
		job, ok := d.jobs[id]
		if !ok {
			return store.ErrNotFound
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (j *jobStore) UpdateStatus(ctx context.Context, job *models.Job, expected models.JobStatus) error {
	return j.s.do(func(d *dataset) error {
		cur, ok := d.jobs[job.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Status != expected {
			return store.ErrStaleState
		}
		job.UpdatedAt = time.Now().UTC()
		cur.Status = job.Status
		cur.UpdatedAt = job.UpdatedAt
		d.jobs[job.ID] = cur
		return nil
	})
}

func (j *jobStore) Delete(ctx context.Context, id string) error {
	return j.s.do(func(d *dataset) error {
		if _, ok := d.jobs[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.jobs, id)
		return nil
	})
}

type applicationStore struct{ s scope }

func (a *applicationStore) Create(ctx context.Context, app *models.JobApplication) error {
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
	return a.s.do(func(d *dataset) error {
		if _, ok := d.applications[app.ID]; ok {
			return store.ErrDuplicate
		}
		if !app.Status.IsTerminal() {
			for _, other := range d.applications {
				if other.JobID == app.JobID && other.DoctorID == app.DoctorID && !other.Status.IsTerminal() {
					return store.ErrDuplicate
				}
			}
		}
		d.applications[app.ID] = *app
		return nil
	})
}

func (a *applicationStore) Get(ctx context.Context, id string) (*models.JobApplication, error) {
	var out models.JobApplication
	err := a.s.do(func(d *dataset) error {
		app, ok := d.applications[id]
		if !ok {
			return store.ErrNotFound
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *applicationStore) ListByJob(ctx context.Context, jobID string) ([]*models.JobApplication, error) {
	var out []*models.JobApplication
	err := a.s.do(func(d *dataset) error {
		for _, app := range d.applications {
			if app.JobID == jobID {
				app := app
				out = append(out, &app)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool {
		if out[i].AppliedAt.Equal(out[k].AppliedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].AppliedAt.Before(out[k].AppliedAt)
	})
	return out, err
}

func (a *applicationStore) FindActive(ctx context.Context, jobID, doctorID string) (*models.JobApplication, error) {
	var out *models.JobApplication
	err := a.s.do(func(d *dataset) error {
		for _, app := range d.applications {
			if app.JobID == jobID && app.DoctorID == doctorID && !app.Status.IsTerminal() {
				app := app
				out = &app
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (a *applicationStore) UpdateStatus(ctx context.Context, app *models.JobApplication, expected models.ApplicationStatus) error {
	return a.s.do(func(d *dataset) error {
		cur, ok := d.applications[app.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Status != expected {
			return store.ErrStaleState
		}
		app.UpdatedAt = time.Now().UTC()
		cur.Status = app.Status
		cur.CancellationReason = app.CancellationReason
		cur.ReviewedAt = app.ReviewedAt
		cur.UpdatedAt = app.UpdatedAt
		d.applications[app.ID] = cur
		return nil
	})
}

func (a *applicationStore) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	n := 0
	err := a.s.do(func(d *dataset) error {
		for id, app := range d.applications {
			if app.JobID == jobID && app.Status.IsTerminal() {
				delete(d.applications, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
