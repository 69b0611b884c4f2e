package lifecycle

import (
	"fmt"
	"strings"
)

// ApplicationEvent is a requested application transition.
type ApplicationEvent interface{ applicationEvent() }

// Approve moves a PENDING application to EMPLOYER_APPROVED.
type Approve struct{}

// Reject moves a PENDING application to REJECTED.
type Reject struct{}

// Confirm moves an EMPLOYER_APPROVED application to DOCTOR_CONFIRMED.
type Confirm struct{}

// Cancel withdraws a live application. Reason is mandatory once confirmed.
type Cancel struct{ Reason string }

// completeApplication is raised only by the job completion cascade.
type completeApplication struct{}

func (Approve) applicationEvent()             {}
func (Reject) applicationEvent()              {}
func (Confirm) applicationEvent()             {}
func (Cancel) applicationEvent()              {}
func (completeApplication) applicationEvent() {}

// JobEvent is a requested job transition.
type JobEvent interface{ jobEvent() }

type (
	CloseJob    struct{}
	ReopenJob   struct{}
	FillJob     struct{}
	CompleteJob struct{}
	CancelJob   struct{}
)

func (CloseJob) jobEvent()    {}
func (ReopenJob) jobEvent()   {}
func (FillJob) jobEvent()     {}
func (CompleteJob) jobEvent() {}
func (CancelJob) jobEvent()   {}

// VerificationDecision is an admin review outcome.
type VerificationDecision interface{ verificationDecision() }

// ApproveVerification approves a pending verification.
type ApproveVerification struct{}

// RejectVerification rejects a pending verification with a reason.
type RejectVerification struct{ Reason string }

func (ApproveVerification) verificationDecision() {}
func (RejectVerification) verificationDecision()  {}

// InvitationDecision is the invitee's answer.
type InvitationDecision string

const (
	Accept  InvitationDecision = "accept"
	Decline InvitationDecision = "decline"
)

// ParseApplicationEvent maps a wire event name to an ApplicationEvent.
func ParseApplicationEvent(name, reason string) (ApplicationEvent, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "approve":
		return Approve{}, nil
	case "reject":
		return Reject{}, nil
	case "confirm":
		return Confirm{}, nil
	case "cancel":
		return Cancel{Reason: reason}, nil
	}
	return nil, invalid("event", fmt.Sprintf("unknown application event %q", name))
}

// ParseJobEvent maps a wire event name to a JobEvent.
func ParseJobEvent(name string) (JobEvent, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "close":
		return CloseJob{}, nil
	case "reopen":
		return ReopenJob{}, nil
	case "fill":
		return FillJob{}, nil
	case "complete":
		return CompleteJob{}, nil
	case "cancel":
		return CancelJob{}, nil
	}
	return nil, invalid("event", fmt.Sprintf("unknown job event %q", name))
}

// ParseVerificationDecision maps a wire decision to a VerificationDecision.
func ParseVerificationDecision(name, reason string) (VerificationDecision, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "approve", "approved":
		return ApproveVerification{}, nil
	case "reject", "rejected":
		return RejectVerification{Reason: reason}, nil
	}
	return nil, invalid("decision", fmt.Sprintf("unknown verification decision %q", name))
}

// ParseInvitationDecision maps a wire decision to an InvitationDecision.
func ParseInvitationDecision(name string) (InvitationDecision, error) {
	switch d := InvitationDecision(strings.ToLower(strings.TrimSpace(name))); d {
	case Accept, Decline:
		return d, nil
	}
	return "", invalid("decision", fmt.Sprintf("unknown invitation decision %q", name))
}
