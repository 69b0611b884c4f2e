package models

import (
	"time"
)

// InvitationStatus represents the status of a staff invitation.
type InvitationStatus string

const (
	// InvitationStatusPending indicates the invitation awaits a response.
	InvitationStatusPending InvitationStatus = "PENDING"
	// InvitationStatusAccepted indicates the invitee joined the facility.
	InvitationStatusAccepted InvitationStatus = "ACCEPTED"
	// InvitationStatusDeclined indicates the invitee turned the invitation down.
	InvitationStatusDeclined InvitationStatus = "DECLINED"
	// InvitationStatusExpired indicates the invitation lapsed without a response.
	InvitationStatusExpired InvitationStatus = "EXPIRED"
)

// IsValid reports whether the status is known.
func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationStatusPending, InvitationStatusAccepted, InvitationStatusDeclined, InvitationStatusExpired:
		return true
	default:
		return false
	}
}

// StaffInvitation invites a person to join a facility's staff.
// Only the SHA-256 hash of the single-use token is persisted.
type StaffInvitation struct {
	ID           string           `json:"id"`
	FacilityID   string           `json:"facility_id"`
	InviteeEmail string           `json:"invitee_email"`
	Role         FacilityRole     `json:"role"`
	TokenHash    string           `json:"-"`
	Status       InvitationStatus `json:"status"`
	InvitedBy    string           `json:"invited_by"`
	ExpiresAt    time.Time        `json:"expires_at"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// IsExpiredAt returns true if the invitation can no longer be answered at t.
func (i *StaffInvitation) IsExpiredAt(t time.Time) bool {
	return !t.Before(i.ExpiresAt)
}

// IsValidAt returns true if the invitation can be answered at t.
func (i *StaffInvitation) IsValidAt(t time.Time) bool {
	return i.Status == InvitationStatusPending && !i.IsExpiredAt(t)
}
