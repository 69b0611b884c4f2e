package lifecycle

import (
	"context"
	"errors"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// guard decides whether an actor may trigger a transition. Checks read
// memberships through the transaction that commits the transition.
type guard struct {
	rbac *auth.RBACService
}

// requireFacility admits a facility actor holding an active membership in
// facilityID whose role grants perm.
func (g guard) requireFacility(ctx context.Context, tx store.Store, actor models.Actor, facilityID string, perm auth.Permission, entity, id string) error {
	if actor.Role != models.ActorRoleFacility || actor.ID == "" {
		return unauthorized(entity, id, "facility staff only")
	}
	err := g.rbac.CheckFacilityPermission(ctx, tx.Memberships(), facilityID, actor.ID, perm)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrNotMember):
		return unauthorized(entity, id, "no active role at this facility")
	case errors.Is(err, auth.ErrPermissionDenied):
		return unauthorized(entity, id, "facility role lacks "+string(perm))
	default:
		return err
	}
}

func (g guard) requireApplicant(actor models.Actor, app *models.JobApplication) error {
	if actor.Role != models.ActorRoleDoctor || actor.ID == "" || actor.ID != app.DoctorID {
		return unauthorized("application", app.ID, "applicant only")
	}
	return nil
}

func (g guard) requireAdmin(actor models.Actor, entity, id string) error {
	if !actor.IsAdmin() || actor.ID == "" {
		return unauthorized(entity, id, "admin only")
	}
	return nil
}

// requireSubject admits the doctor a verification is about, or an owner of
// the facility it is about.
func (g guard) requireSubject(ctx context.Context, tx store.Store, actor models.Actor, kind models.SubjectKind, subjectID, id string) error {
	switch kind {
	case models.SubjectDoctor:
		if actor.Role == models.ActorRoleDoctor && actor.ID != "" && actor.ID == subjectID {
			return nil
		}
		return unauthorized("verification", id, "subject only")
	case models.SubjectFacility:
		return g.requireFacility(ctx, tx, actor, subjectID, auth.PermissionManageFacility, "verification", id)
	default:
		return invalid("subject_kind", "must be doctor or facility")
	}
}
