package models

import (
	"errors"
	"time"
)

// FacilityRole represents a staff member's role within a facility.
type FacilityRole string

const (
	FacilityRoleOwner     FacilityRole = "owner"     // Full access, manages staff and jobs
	FacilityRoleManager   FacilityRole = "manager"   // Manages jobs and reviews applications
	FacilityRoleRecruiter FacilityRole = "recruiter" // Reviews applications only
)

// ErrInvalidFacilityRole is returned when a role is not a known facility role.
var ErrInvalidFacilityRole = errors.New("invalid facility role")

// IsValid reports whether the role is a known facility role.
func (r FacilityRole) IsValid() bool {
	switch r {
	case FacilityRoleOwner, FacilityRoleManager, FacilityRoleRecruiter:
		return true
	default:
		return false
	}
}

// ParseFacilityRole converts a raw string to a FacilityRole.
func ParseFacilityRole(s string) (FacilityRole, error) {
	r := FacilityRole(s)
	if !r.IsValid() {
		return "", ErrInvalidFacilityRole
	}
	return r, nil
}

// FacilityMembership links a user to a facility with a role.
// Only active memberships grant permissions.
type FacilityMembership struct {
	FacilityID string       `json:"facility_id"`
	UserID     string       `json:"user_id"`
	Role       FacilityRole `json:"role"`
	Active     bool         `json:"active"`
	CreatedAt  time.Time    `json:"created_at"`
}
