package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

// RBAC errors.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotMember        = errors.New("no active facility membership")
)

// Permission represents a facility-side action.
type Permission string

const (
	// PermissionReviewApplications allows approving and rejecting applications.
	PermissionReviewApplications Permission = "review_applications"
	// PermissionManageJobs allows posting, closing, reopening, filling and completing jobs.
	PermissionManageJobs Permission = "manage_jobs"
	// PermissionManageStaff allows inviting staff.
	PermissionManageStaff Permission = "manage_staff"
	// PermissionManageFacility is owner-only: cancelling and deleting jobs,
	// and submitting the facility's verification.
	PermissionManageFacility Permission = "manage_facility"
)

// rolePermissions defines which permissions each facility role has.
var rolePermissions = map[models.FacilityRole][]Permission{
	models.FacilityRoleOwner: {
		PermissionReviewApplications,
		PermissionManageJobs,
		PermissionManageStaff,
		PermissionManageFacility,
	},
	models.FacilityRoleManager: {
		PermissionReviewApplications,
		PermissionManageJobs,
	},
	models.FacilityRoleRecruiter: {
		PermissionReviewApplications,
	},
}

const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

var enforcer = newEnforcer()

// newEnforcer loads rolePermissions into a casbin enforcer. The policy is
// static, so a malformed model is a programming error.
func newEnforcer() *casbin.SyncedEnforcer {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		panic("auth: invalid policy model: " + err.Error())
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		panic("auth: creating enforcer: " + err.Error())
	}
	for role, perms := range rolePermissions {
		for _, p := range perms {
			if _, err := e.AddPolicy(string(role), string(p)); err != nil {
				panic("auth: adding policy: " + err.Error())
			}
		}
	}
	return e
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role models.FacilityRole, permission Permission) error {
	allowed, err := enforcer.Enforce(string(role), string(permission))
	if err != nil || !allowed {
		return ErrPermissionDenied
	}
	return nil
}

// RBACService resolves facility memberships against role permissions.
type RBACService struct {
	logger *slog.Logger
}

// NewRBACService creates a new RBAC service.
func NewRBACService(logger *slog.Logger) *RBACService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RBACService{logger: logger}
}

// CheckFacilityPermission verifies that userID holds an active membership in
// facilityID whose role grants permission. Memberships are read through
// memberships so the check can run inside a transaction.
func (s *RBACService) CheckFacilityPermission(ctx context.Context, memberships store.MembershipStore, facilityID, userID string, permission Permission) error {
	m, err := memberships.Get(ctx, facilityID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}
	if !m.Active {
		return ErrNotMember
	}
	if err := CheckRolePermission(m.Role, permission); err != nil {
		s.logger.Debug("facility permission denied",
			"facility_id", facilityID,
			"user_id", userID,
			"role", m.Role,
			"permission", permission,
		)
		return err
	}
	return nil
}

// StaffWith lists the active members of a facility whose role grants permission.
func StaffWith(ctx context.Context, memberships store.MembershipStore, facilityID string, permission Permission) ([]string, error) {
	members, err := memberships.ListActive(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range members {
		if CheckRolePermission(m.Role, permission) == nil {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}
