package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a posted shift.
type JobStatus string

const (
	JobStatusOpen      JobStatus = "OPEN"
	JobStatusFilled    JobStatus = "FILLED"
	JobStatusClosed    JobStatus = "CLOSED"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusCompleted JobStatus = "COMPLETED"
)

// IsValid reports whether the status is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusOpen, JobStatusFilled, JobStatusClosed, JobStatusCancelled, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further job events apply.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCancelled || s == JobStatusCompleted
}

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus converts a raw string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

// Urgency is how quickly a facility needs the shift covered.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// IsValid reports whether the urgency is known.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyCritical:
		return true
	default:
		return false
	}
}

// Job is a shift posted by a facility.
type Job struct {
	ID              string    `json:"id"`
	FacilityID      string    `json:"facility_id"`
	Title           string    `json:"title"`
	Specialty       string    `json:"specialty,omitempty"`
	Urgency         Urgency   `json:"urgency"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	Currency        string    `json:"currency"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validation errors for jobs.
var (
	ErrJobTitleRequired  = errors.New("job title is required")
	ErrJobTitleTooLong   = errors.New("job title must be 200 characters or less")
	ErrJobScheduleWindow = errors.New("job must end after it starts")
	ErrJobRateNegative   = errors.New("hourly rate must not be negative")
	ErrJobUrgencyInvalid = errors.New("urgency must be routine, urgent, or critical")
	ErrJobCurrency       = errors.New("currency must be a 3-letter ISO code")
)

// Validate checks the job's descriptive fields.
func (j *Job) Validate() error {
	title := strings.TrimSpace(j.Title)
	if title == "" {
		return ErrJobTitleRequired
	}
	if len([]rune(title)) > 200 {
		return ErrJobTitleTooLong
	}
	if !j.EndsAt.After(j.StartsAt) {
		return ErrJobScheduleWindow
	}
	if j.HourlyRateCents < 0 {
		return ErrJobRateNegative
	}
	if !j.Urgency.IsValid() {
		return ErrJobUrgencyInvalid
	}
	if len(j.Currency) != 3 {
		return ErrJobCurrency
	}
	return nil
}
