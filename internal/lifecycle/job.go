package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/models"
)

type jobPlan struct {
	to   models.JobStatus
	noop bool
	// cascade completes the job's confirmed applications with it.
	cascade bool
}

// planJob decides the transition for ev from job's current status.
func planJob(job *models.Job, ev JobEvent) (jobPlan, error) {
	from := job.Status
	if from.IsTerminal() {
		return jobPlan{}, stale("job", job.ID, string(from))
	}

	switch ev.(type) {
	case CloseJob:
		switch from {
		case models.JobStatusClosed:
			return jobPlan{to: from, noop: true}, nil
		case models.JobStatusOpen:
			return jobPlan{to: models.JobStatusClosed}, nil
		}
	case ReopenJob:
		switch from {
		case models.JobStatusOpen:
			return jobPlan{to: from, noop: true}, nil
		case models.JobStatusClosed, models.JobStatusFilled:
			return jobPlan{to: models.JobStatusOpen}, nil
		}
	case FillJob:
		switch from {
		case models.JobStatusFilled:
			return jobPlan{to: from, noop: true}, nil
		case models.JobStatusOpen:
			return jobPlan{to: models.JobStatusFilled}, nil
		}
	case CompleteJob:
		return jobPlan{to: models.JobStatusCompleted, cascade: true}, nil
	case CancelJob:
		return jobPlan{to: models.JobStatusCancelled}, nil
	default:
		return jobPlan{}, invalid("event", "unsupported job event")
	}
	return jobPlan{}, stale("job", job.ID, string(from))
}

// jobPermission is the facility permission a job event needs.
func jobPermission(ev JobEvent) auth.Permission {
	if _, ok := ev.(CancelJob); ok {
		return auth.PermissionManageFacility
	}
	return auth.PermissionManageJobs
}

// CreateJob posts a new OPEN job for the actor's facility.
func (e *Engine) CreateJob(ctx context.Context, actor models.Actor, job *models.Job) (*models.Job, error) {
	if job == nil {
		return nil, invalid("job", "job is required")
	}
	job.Title = strings.TrimSpace(job.Title)
	job.Currency = strings.ToUpper(strings.TrimSpace(job.Currency))
	if job.Urgency == "" {
		job.Urgency = models.UrgencyRoutine
	}
	if err := job.Validate(); err != nil {
		return nil, jobValidation(err)
	}

	err := e.commit(ctx, func(u *unit) error {
		if err := e.guard.requireFacility(ctx, u.tx, actor, job.FacilityID, auth.PermissionManageJobs, "job", ""); err != nil {
			return err
		}
		now := e.clock()
		job.ID = ""
		job.Status = models.JobStatusOpen
		job.CreatedAt = now
		job.UpdatedAt = now
		return storeErr("job", "", u.tx.Jobs().Create(ctx, job))
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "job created", "job_id", job.ID, "facility_id", job.FacilityID)
	return job, nil
}

func jobValidation(err error) error {
	field := "job"
	switch {
	case errors.Is(err, models.ErrJobTitleRequired), errors.Is(err, models.ErrJobTitleTooLong):
		field = "title"
	case errors.Is(err, models.ErrJobScheduleWindow):
		field = "ends_at"
	case errors.Is(err, models.ErrJobRateNegative):
		field = "hourly_rate_cents"
	case errors.Is(err, models.ErrJobUrgencyInvalid):
		field = "urgency"
	case errors.Is(err, models.ErrJobCurrency):
		field = "currency"
	}
	e := invalid(field, err.Error())
	e.Err = err
	return e
}

// TransitionJob applies ev to a job. Completing a job completes every
// DOCTOR_CONFIRMED application in the same transaction; if any of them
// cannot be completed nothing is.
func (e *Engine) TransitionJob(ctx context.Context, actor models.Actor, jobID string, ev JobEvent) (*models.Job, error) {
	if ev == nil {
		return nil, invalid("event", "unsupported job event")
	}

	var (
		job       *models.Job
		from      models.JobStatus
		noop      bool
		completed int
	)
	err := e.commit(ctx, func(u *unit) error {
		var err error
		job, err = u.tx.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return storeErr("job", jobID, err)
		}
		if err := e.guard.requireFacility(ctx, u.tx, actor, job.FacilityID, jobPermission(ev), "job", job.ID); err != nil {
			return err
		}

		from = job.Status
		plan, err := planJob(job, ev)
		if err != nil {
			return err
		}
		if plan.noop {
			noop = true
			return nil
		}

		apps, err := u.tx.Applications().ListByJob(ctx, job.ID)
		if err != nil {
			return storeErr("job", job.ID, err)
		}
		if plan.to == models.JobStatusCancelled {
			if n := countActive(apps); n > 0 {
				return hasDependents("job", job.ID, n)
			}
		}

		job.Status = plan.to
		if err := u.tx.Jobs().UpdateStatus(ctx, job, from); err != nil {
			return casErr("job", job.ID, err, func() (string, error) {
				cur, err := u.tx.Jobs().Get(ctx, job.ID)
				if err != nil {
					return "", err
				}
				return string(cur.Status), nil
			})
		}

		if plan.cascade {
			completed, err = e.completeConfirmed(ctx, u, job, apps, actor.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInconsistent {
			e.logger.ErrorContext(ctx, "job completion cascade aborted", "job_id", jobID, "error", err)
		}
		return nil, err
	}

	if !noop {
		e.logger.InfoContext(ctx, "job transitioned",
			"job_id", job.ID,
			"from", from,
			"to", job.Status,
			"completed_applications", completed,
		)
	}
	return job, nil
}

// completeConfirmed moves every DOCTOR_CONFIRMED application to COMPLETED.
// Applications in any other state are left alone.
func (e *Engine) completeConfirmed(ctx context.Context, u *unit, job *models.Job, apps []*models.JobApplication, actorID string) (int, error) {
	n := 0
	for _, app := range apps {
		if app.Status != models.ApplicationStatusDoctorConfirmed {
			continue
		}
		plan, err := planApplication(app, completeApplication{})
		if err == nil {
			err = e.applyApplication(ctx, u, job, app, plan, actorID)
		}
		if err != nil {
			return 0, &Error{
				Kind:     KindInconsistent,
				Entity:   "job",
				EntityID: job.ID,
				Message:  fmt.Sprintf("completing application %s", app.ID),
				Err:      err,
			}
		}
		n++
	}
	return n, nil
}

func countActive(apps []*models.JobApplication) int {
	n := 0
	for _, app := range apps {
		if !app.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// DeleteJob permanently removes a job with no active applications, together
// with its terminal applications.
func (e *Engine) DeleteJob(ctx context.Context, actor models.Actor, jobID string) error {
	var removed int
	err := e.commit(ctx, func(u *unit) error {
		job, err := u.tx.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return storeErr("job", jobID, err)
		}
		if err := e.guard.requireFacility(ctx, u.tx, actor, job.FacilityID, auth.PermissionManageFacility, "job", job.ID); err != nil {
			return err
		}

		apps, err := u.tx.Applications().ListByJob(ctx, job.ID)
		if err != nil {
			return storeErr("job", job.ID, err)
		}
		if n := countActive(apps); n > 0 {
			return hasDependents("job", job.ID, n)
		}

		if removed, err = u.tx.Applications().DeleteByJob(ctx, job.ID); err != nil {
			return storeErr("job", job.ID, err)
		}
		return storeErr("job", job.ID, u.tx.Jobs().Delete(ctx, job.ID))
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "job deleted", "job_id", jobID, "applications_removed", removed)
	return nil
}
