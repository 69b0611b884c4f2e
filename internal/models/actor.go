// Package models provides data structures for the locum staffing platform.
package models

// ActorRole is the platform-level role carried by an authenticated session.
type ActorRole string

const (
	// ActorRoleDoctor is a clinician who applies to jobs.
	ActorRoleDoctor ActorRole = "doctor"
	// ActorRoleFacility is a user acting on behalf of one or more facilities.
	ActorRoleFacility ActorRole = "facility"
	// ActorRoleAdmin is a platform administrator who reviews verifications.
	ActorRoleAdmin ActorRole = "admin"
)

// IsValid reports whether the role is a known actor role.
func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleDoctor, ActorRoleFacility, ActorRoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r ActorRole) String() string {
	return string(r)
}

// Actor is the authenticated identity that requests a transition.
type Actor struct {
	ID    string    `json:"id"`
	Email string    `json:"email,omitempty"`
	Role  ActorRole `json:"role"`
}

// IsDoctor reports whether the actor is a doctor.
func (a Actor) IsDoctor() bool { return a.Role == ActorRoleDoctor }

// IsAdmin reports whether the actor is a platform administrator.
func (a Actor) IsAdmin() bool { return a.Role == ActorRoleAdmin }

// Account is a directory entry for a platform user.
type Account struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  ActorRole `json:"role"`
}

// EntityKind names the kind of record a transition or notification refers to.
type EntityKind string

const (
	EntityJob          EntityKind = "job"
	EntityApplication  EntityKind = "application"
	EntityVerification EntityKind = "verification"
	EntityInvitation   EntityKind = "invitation"
)
