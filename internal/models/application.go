package models

import (
	"fmt"
	"strings"
	"time"
)

// ApplicationStatus represents the lifecycle state of a job application.
type ApplicationStatus string

const (
	ApplicationStatusPending          ApplicationStatus = "PENDING"
	ApplicationStatusEmployerApproved ApplicationStatus = "EMPLOYER_APPROVED"
	ApplicationStatusDoctorConfirmed  ApplicationStatus = "DOCTOR_CONFIRMED"
	ApplicationStatusRejected         ApplicationStatus = "REJECTED"
	ApplicationStatusCancelled        ApplicationStatus = "CANCELLED"
	ApplicationStatusCompleted        ApplicationStatus = "COMPLETED"
)

// legacyApplicationAccepted is read from older rows and normalized to
// ApplicationStatusEmployerApproved. It is never written.
const legacyApplicationAccepted = "ACCEPTED"

// IsValid reports whether the status is a canonical application status.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusEmployerApproved, ApplicationStatusDoctorConfirmed,
		ApplicationStatusRejected, ApplicationStatusCancelled, ApplicationStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the application accepts no further transitions.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case ApplicationStatusRejected, ApplicationStatusCancelled, ApplicationStatusCompleted:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s ApplicationStatus) String() string {
	return string(s)
}

// ParseApplicationStatus converts a raw string to an ApplicationStatus,
// folding the legacy ACCEPTED value into EMPLOYER_APPROVED.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == legacyApplicationAccepted {
		return ApplicationStatusEmployerApproved, nil
	}
	st := ApplicationStatus(raw)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown application status %q", s)
	}
	return st, nil
}

// ValidApplicationStatuses returns all canonical application statuses.
func ValidApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationStatusPending,
		ApplicationStatusEmployerApproved,
		ApplicationStatusDoctorConfirmed,
		ApplicationStatusRejected,
		ApplicationStatusCancelled,
		ApplicationStatusCompleted,
	}
}

// JobApplication is a doctor's application to a job.
type JobApplication struct {
	ID                 string            `json:"id"`
	JobID              string            `json:"job_id"`
	DoctorID           string            `json:"doctor_id"`
	Status             ApplicationStatus `json:"status"`
	AppliedAt          time.Time         `json:"applied_at"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	ReviewedAt         *time.Time        `json:"reviewed_at,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at"`
}
