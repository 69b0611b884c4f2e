package lifecycle

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/secrets"
	"github.com/narvanalabs/locum/internal/store"
)

// MaxRejectionReason bounds a verification rejection reason, in runes.
const MaxRejectionReason = 500

// VerificationSubmission is what a subject submits for review.
type VerificationSubmission struct {
	SubjectKind  models.SubjectKind
	SubjectID    string
	Credentials  secrets.Credentials
	DocumentURLs []string
}

// reviewPlan is the outcome of an admin decision on a PENDING verification.
type reviewPlan struct {
	to     models.VerificationStatus
	reason *string
}

func planReview(v *models.Verification, d VerificationDecision) (reviewPlan, error) {
	if v.Status != models.VerificationStatusPending {
		return reviewPlan{}, stale("verification", v.ID, string(v.Status))
	}
	switch d := d.(type) {
	case ApproveVerification:
		return reviewPlan{to: models.VerificationStatusApproved}, nil
	case RejectVerification:
		reason := strings.TrimSpace(d.Reason)
		if reason == "" {
			return reviewPlan{}, invalid("reason", "a rejection reason is required")
		}
		if utf8.RuneCountInString(reason) > MaxRejectionReason {
			return reviewPlan{}, invalid("reason", "reason must be 500 characters or less")
		}
		return reviewPlan{to: models.VerificationStatusRejected, reason: &reason}, nil
	default:
		return reviewPlan{}, invalid("decision", "unsupported verification decision")
	}
}

// seal encodes the submitted credentials for storage.
func (e *Engine) seal(ctx context.Context, creds secrets.Credentials) ([]byte, bool, error) {
	if creds == nil {
		creds = secrets.Credentials{}
	}
	return e.sealer.Seal(ctx, creds)
}

// SubmitVerification opens a PENDING verification for a subject. If the
// subject's latest verification was REJECTED the submission is an appeal of
// that record.
func (e *Engine) SubmitVerification(ctx context.Context, actor models.Actor, sub VerificationSubmission) (*models.Verification, error) {
	if !sub.SubjectKind.IsValid() {
		return nil, invalid("subject_kind", "must be doctor or facility")
	}
	if strings.TrimSpace(sub.SubjectID) == "" {
		return nil, invalid("subject_id", "subject is required")
	}
	sealed, encrypted, err := e.seal(ctx, sub.Credentials)
	if err != nil {
		return nil, err
	}

	var v *models.Verification
	err = e.commit(ctx, func(u *unit) error {
		if err := e.guard.requireSubject(ctx, u.tx, actor, sub.SubjectKind, sub.SubjectID, ""); err != nil {
			return err
		}

		latest, err := u.tx.Verifications().Latest(ctx, sub.SubjectKind, sub.SubjectID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return storeErr("verification", "", err)
		case latest.Status == models.VerificationStatusRejected:
			v = latest
			return e.resubmit(ctx, u, v, sealed, encrypted, sub.DocumentURLs, actor.ID)
		default:
			return stale("verification", latest.ID, string(latest.Status))
		}

		v = &models.Verification{
			SubjectKind:  sub.SubjectKind,
			SubjectID:    sub.SubjectID,
			Credentials:  sealed,
			Encrypted:    encrypted,
			DocumentURLs: documentURLs(sub.DocumentURLs),
			Status:       models.VerificationStatusPending,
			SubmittedAt:  e.clock(),
		}
		if err := u.tx.Verifications().Create(ctx, v); err != nil {
			return storeErr("verification", "", err)
		}
		return u.record(ctx, verificationTransition(v, notify.Created, actor.ID))
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "verification submitted",
		"verification_id", v.ID,
		"subject_kind", v.SubjectKind,
		"subject_id", v.SubjectID,
		"encrypted", v.Encrypted,
	)
	return v, nil
}

// ResubmitVerification appeals a REJECTED verification, returning it to
// PENDING with the rejection cleared. Nil credentials or document URLs keep
// the previously submitted values.
func (e *Engine) ResubmitVerification(ctx context.Context, actor models.Actor, verificationID string, creds secrets.Credentials, docs []string) (*models.Verification, error) {
	var (
		sealed    []byte
		encrypted bool
	)
	if creds != nil {
		var err error
		if sealed, encrypted, err = e.seal(ctx, creds); err != nil {
			return nil, err
		}
	}

	var v *models.Verification
	err := e.commit(ctx, func(u *unit) error {
		var err error
		v, err = u.tx.Verifications().Get(ctx, verificationID)
		if err != nil {
			return storeErr("verification", verificationID, err)
		}
		if err := e.guard.requireSubject(ctx, u.tx, actor, v.SubjectKind, v.SubjectID, v.ID); err != nil {
			return err
		}
		if v.Status != models.VerificationStatusRejected {
			return stale("verification", v.ID, string(v.Status))
		}
		if creds == nil {
			sealed, encrypted = v.Credentials, v.Encrypted
		}
		if docs == nil {
			docs = v.DocumentURLs
		}
		return e.resubmit(ctx, u, v, sealed, encrypted, docs, actor.ID)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "verification resubmitted", "verification_id", v.ID)
	return v, nil
}

// resubmit moves a REJECTED verification back to PENDING.
func (e *Engine) resubmit(ctx context.Context, u *unit, v *models.Verification, sealed []byte, encrypted bool, docs []string, actorID string) error {
	v.Status = models.VerificationStatusPending
	v.Credentials = sealed
	v.Encrypted = encrypted
	v.DocumentURLs = documentURLs(docs)
	v.RejectionReason = nil
	v.ReviewedAt = nil
	v.ReviewedBy = ""
	v.SubmittedAt = e.clock()

	if err := u.tx.Verifications().UpdateStatus(ctx, v, models.VerificationStatusRejected); err != nil {
		return casErr("verification", v.ID, err, e.verificationState(ctx, u, v.ID))
	}
	return u.record(ctx, verificationTransition(v, string(models.VerificationStatusRejected), actorID))
}

// ReviewVerification records an admin decision on a PENDING verification.
// A decision is final; a second review is StaleState.
func (e *Engine) ReviewVerification(ctx context.Context, actor models.Actor, verificationID string, decision VerificationDecision) (*models.Verification, error) {
	if err := e.guard.requireAdmin(actor, "verification", verificationID); err != nil {
		return nil, err
	}

	var v *models.Verification
	err := e.commit(ctx, func(u *unit) error {
		var err error
		v, err = u.tx.Verifications().Get(ctx, verificationID)
		if err != nil {
			return storeErr("verification", verificationID, err)
		}
		plan, err := planReview(v, decision)
		if err != nil {
			return err
		}

		now := e.clock()
		v.Status = plan.to
		v.RejectionReason = plan.reason
		v.ReviewedAt = &now
		v.ReviewedBy = actor.ID
		if err := u.tx.Verifications().UpdateStatus(ctx, v, models.VerificationStatusPending); err != nil {
			return casErr("verification", v.ID, err, e.verificationState(ctx, u, v.ID))
		}
		return u.record(ctx, verificationTransition(v, string(models.VerificationStatusPending), actor.ID))
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "verification reviewed",
		"verification_id", v.ID,
		"status", v.Status,
	)
	return v, nil
}

// VerificationCredentials opens the sealed credentials of a verification for
// an admin or the verification's subject.
func (e *Engine) VerificationCredentials(ctx context.Context, actor models.Actor, verificationID string) (secrets.Credentials, error) {
	v, err := e.store.Verifications().Get(ctx, verificationID)
	if err != nil {
		return nil, storeErr("verification", verificationID, err)
	}
	if !actor.IsAdmin() {
		if err := e.guard.requireSubject(ctx, e.store, actor, v.SubjectKind, v.SubjectID, v.ID); err != nil {
			return nil, err
		}
	}
	return e.sealer.Open(ctx, v.Credentials, v.Encrypted)
}

func (e *Engine) verificationState(ctx context.Context, u *unit, id string) func() (string, error) {
	return func() (string, error) {
		cur, err := u.tx.Verifications().Get(ctx, id)
		if err != nil {
			return "", err
		}
		return string(cur.Status), nil
	}
}

func verificationTransition(v *models.Verification, from, actorID string) notify.Transition {
	t := notify.Transition{
		Entity:      models.EntityVerification,
		EntityID:    v.ID,
		From:        from,
		To:          string(v.Status),
		ActorID:     actorID,
		SubjectKind: v.SubjectKind,
		SubjectID:   v.SubjectID,
	}
	if v.SubjectKind == models.SubjectFacility {
		t.FacilityID = v.SubjectID
	}
	if v.RejectionReason != nil {
		t.Reason = *v.RejectionReason
	}
	return t
}

func documentURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
