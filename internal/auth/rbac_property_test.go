package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store/memory"
)

// Role permissions are monotonic: every permission a recruiter holds is held
// by a manager, and every permission a manager holds is held by an owner.

func genPermission() gopter.Gen {
	return gen.OneConstOf(
		PermissionReviewApplications,
		PermissionManageJobs,
		PermissionManageStaff,
		PermissionManageFacility,
	)
}

func TestRolePermissionsAreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("higher roles include lower role permissions", prop.ForAll(
		func(p Permission) bool {
			recruiter := CheckRolePermission(models.FacilityRoleRecruiter, p) == nil
			manager := CheckRolePermission(models.FacilityRoleManager, p) == nil
			owner := CheckRolePermission(models.FacilityRoleOwner, p) == nil
			return (!recruiter || manager) && (!manager || owner) && owner
		},
		genPermission(),
	))

	properties.TestingRun(t)
}

func TestCheckRolePermissionUnknownRole(t *testing.T) {
	if err := CheckRolePermission(models.FacilityRole("janitor"), PermissionManageJobs); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCheckFacilityPermission(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rbac := NewRBACService(nil)

	_ = st.Memberships().Upsert(ctx, &models.FacilityMembership{FacilityID: "f1", UserID: "owner", Role: models.FacilityRoleOwner, Active: true})
	_ = st.Memberships().Upsert(ctx, &models.FacilityMembership{FacilityID: "f1", UserID: "rec", Role: models.FacilityRoleRecruiter, Active: true})
	_ = st.Memberships().Upsert(ctx, &models.FacilityMembership{FacilityID: "f1", UserID: "gone", Role: models.FacilityRoleOwner, Active: false})

	tests := []struct {
		name string
		user string
		perm Permission
		want error
	}{
		{"owner manages staff", "owner", PermissionManageStaff, nil},
		{"recruiter reviews", "rec", PermissionReviewApplications, nil},
		{"recruiter cannot manage jobs", "rec", PermissionManageJobs, ErrPermissionDenied},
		{"inactive owner", "gone", PermissionManageJobs, ErrNotMember},
		{"stranger", "nobody", PermissionReviewApplications, ErrNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rbac.CheckFacilityPermission(ctx, st.Memberships(), "f1", tt.user, tt.perm)
			if !errors.Is(err, tt.want) && !(err == nil && tt.want == nil) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	staff, err := StaffWith(ctx, st.Memberships(), "f1", PermissionReviewApplications)
	if err != nil {
		t.Fatalf("StaffWith: %v", err)
	}
	if len(staff) != 2 {
		t.Fatalf("expected 2 reviewers, got %v", staff)
	}
}
