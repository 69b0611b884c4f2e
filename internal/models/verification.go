package models

import (
	"fmt"
	"strings"
	"time"
)

// SubjectKind is what a verification vouches for.
type SubjectKind string

const (
	SubjectDoctor   SubjectKind = "doctor"
	SubjectFacility SubjectKind = "facility"
)

// IsValid reports whether the subject kind is known.
func (k SubjectKind) IsValid() bool {
	return k == SubjectDoctor || k == SubjectFacility
}

// VerificationStatus represents the review state of a verification.
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "PENDING"
	VerificationStatusApproved VerificationStatus = "APPROVED"
	VerificationStatusRejected VerificationStatus = "REJECTED"
)

// IsValid reports whether the status is known.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationStatusPending, VerificationStatusApproved, VerificationStatusRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s VerificationStatus) String() string {
	return string(s)
}

// ParseVerificationStatus converts a raw string to a VerificationStatus.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	st := VerificationStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown verification status %q", s)
	}
	return st, nil
}

// Verification is a credential review for a doctor or a facility.
// Credentials holds the submitted fields, sealed when encryption is configured.
// DocumentURLs are opaque object storage references.
type Verification struct {
	ID              string             `json:"id"`
	SubjectKind     SubjectKind        `json:"subject_kind"`
	SubjectID       string             `json:"subject_id"`
	Credentials     []byte             `json:"-"`
	Encrypted       bool               `json:"encrypted"`
	DocumentURLs    []string           `json:"document_urls"`
	Status          VerificationStatus `json:"status"`
	RejectionReason *string            `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
	ReviewedBy      string             `json:"reviewed_by,omitempty"`
}
