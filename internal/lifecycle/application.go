package lifecycle

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/store"
)

// Cancellation reason bounds, in runes after trimming.
const (
	MinCancellationReason = 10
	MaxCancellationReason = 500
)

// applicationPlan is the outcome of planning an application event.
type applicationPlan struct {
	to     models.ApplicationStatus
	reason *string
	noop   bool
}

// planApplication decides the transition for ev from app's current status.
// It does not check who is asking.
func planApplication(app *models.JobApplication, ev ApplicationEvent) (applicationPlan, error) {
	from := app.Status
	if from.IsTerminal() {
		return applicationPlan{}, stale("application", app.ID, string(from))
	}

	move := func(want, to models.ApplicationStatus) (applicationPlan, error) {
		if from == to {
			return applicationPlan{to: to, noop: true}, nil
		}
		if from != want {
			return applicationPlan{}, stale("application", app.ID, string(from))
		}
		return applicationPlan{to: to}, nil
	}

	switch ev := ev.(type) {
	case Approve:
		return move(models.ApplicationStatusPending, models.ApplicationStatusEmployerApproved)
	case Reject:
		return move(models.ApplicationStatusPending, models.ApplicationStatusRejected)
	case Confirm:
		return move(models.ApplicationStatusEmployerApproved, models.ApplicationStatusDoctorConfirmed)
	case completeApplication:
		if from != models.ApplicationStatusDoctorConfirmed {
			return applicationPlan{}, stale("application", app.ID, string(from))
		}
		return applicationPlan{to: models.ApplicationStatusCompleted}, nil
	case Cancel:
		reason, err := cancellationReason(from, ev.Reason)
		if err != nil {
			return applicationPlan{}, err
		}
		return applicationPlan{to: models.ApplicationStatusCancelled, reason: reason}, nil
	default:
		return applicationPlan{}, invalid("event", "unsupported application event")
	}
}

// advances reports whether moving to s books the doctor further onto the shift.
func advances(s models.ApplicationStatus) bool {
	return s == models.ApplicationStatusEmployerApproved || s == models.ApplicationStatusDoctorConfirmed
}

// cancellationReason validates the reason for cancelling from from. A
// confirmed booking needs a real explanation; otherwise a blank reason is
// stored as null.
func cancellationReason(from models.ApplicationStatus, raw string) (*string, error) {
	reason := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(reason)
	if from == models.ApplicationStatusDoctorConfirmed {
		if n < MinCancellationReason || n > MaxCancellationReason {
			return nil, invalid("reason", "cancelling a confirmed booking needs a reason of 10 to 500 characters")
		}
		return &reason, nil
	}
	if n == 0 {
		return nil, nil
	}
	if n > MaxCancellationReason {
		return nil, invalid("reason", "reason must be 500 characters or less")
	}
	return &reason, nil
}

// SubmitApplication creates a PENDING application by a doctor on an OPEN job.
func (e *Engine) SubmitApplication(ctx context.Context, actor models.Actor, jobID string) (*models.JobApplication, error) {
	if !actor.IsDoctor() || actor.ID == "" {
		return nil, unauthorized("job", jobID, "doctors only")
	}

	var app *models.JobApplication
	err := e.commit(ctx, func(u *unit) error {
		job, err := u.tx.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return storeErr("job", jobID, err)
		}
		if job.Status != models.JobStatusOpen {
			return stale("job", job.ID, string(job.Status))
		}

		existing, err := u.tx.Applications().FindActive(ctx, jobID, actor.ID)
		switch {
		case err == nil:
			return conflict("application", existing.ID, "an active application for this job already exists")
		case !errors.Is(err, store.ErrNotFound):
			return storeErr("application", "", err)
		}

		app = &models.JobApplication{
			JobID:     jobID,
			DoctorID:  actor.ID,
			Status:    models.ApplicationStatusPending,
			AppliedAt: e.clock(),
		}
		if err := u.tx.Applications().Create(ctx, app); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return conflict("application", "", "an active application for this job already exists")
			}
			return storeErr("application", "", err)
		}

		return u.record(ctx, notify.Transition{
			Entity:      models.EntityApplication,
			EntityID:    app.ID,
			From:        notify.Created,
			To:          string(app.Status),
			ActorID:     actor.ID,
			FacilityID:  job.FacilityID,
			JobID:       job.ID,
			JobTitle:    job.Title,
			ApplicantID: actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID,
		"job_id", jobID,
	)
	return app, nil
}

// TransitionApplication applies ev to an application. Replaying the state an
// application already holds succeeds without side effects.
func (e *Engine) TransitionApplication(ctx context.Context, actor models.Actor, applicationID string, ev ApplicationEvent) (*models.JobApplication, error) {
	if _, internal := ev.(completeApplication); internal || ev == nil {
		return nil, invalid("event", "unsupported application event")
	}

	var (
		app  *models.JobApplication
		from models.ApplicationStatus
		noop bool
	)
	err := e.commit(ctx, func(u *unit) error {
		var err error
		app, err = u.tx.Applications().Get(ctx, applicationID)
		if err != nil {
			return storeErr("application", applicationID, err)
		}
		job, err := u.tx.Jobs().GetForUpdate(ctx, app.JobID)
		if err != nil {
			return storeErr("job", app.JobID, err)
		}

		switch ev.(type) {
		case Approve, Reject:
			err = e.guard.requireFacility(ctx, u.tx, actor, job.FacilityID, auth.PermissionReviewApplications, "application", app.ID)
		default:
			err = e.guard.requireApplicant(actor, app)
		}
		if err != nil {
			return err
		}

		from = app.Status
		plan, err := planApplication(app, ev)
		if err != nil {
			return err
		}
		if plan.noop {
			noop = true
			return nil
		}
		// Reject and cancel still settle applications on a finished shift.
		if advances(plan.to) && job.Status.IsTerminal() {
			return stale("job", job.ID, string(job.Status))
		}
		return e.applyApplication(ctx, u, job, app, plan, actor.ID)
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		e.logger.InfoContext(ctx, "application transitioned",
			"application_id", app.ID,
			"from", from,
			"to", app.Status,
		)
	}
	return app, nil
}

// applyApplication commits plan onto app and records its notifications.
func (e *Engine) applyApplication(ctx context.Context, u *unit, job *models.Job, app *models.JobApplication, plan applicationPlan, actorID string) error {
	from := app.Status
	app.Status = plan.to
	switch plan.to {
	case models.ApplicationStatusCancelled:
		app.CancellationReason = plan.reason
	case models.ApplicationStatusEmployerApproved, models.ApplicationStatusRejected:
		now := e.clock()
		app.ReviewedAt = &now
	}

	err := u.tx.Applications().UpdateStatus(ctx, app, from)
	if err != nil {
		return casErr("application", app.ID, err, func() (string, error) {
			cur, err := u.tx.Applications().Get(ctx, app.ID)
			if err != nil {
				return "", err
			}
			return string(cur.Status), nil
		})
	}

	t := notify.Transition{
		Entity:      models.EntityApplication,
		EntityID:    app.ID,
		From:        string(from),
		To:          string(app.Status),
		ActorID:     actorID,
		FacilityID:  job.FacilityID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		ApplicantID: app.DoctorID,
	}
	if app.CancellationReason != nil {
		t.Reason = *app.CancellationReason
	}
	return u.record(ctx, t)
}
