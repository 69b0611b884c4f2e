package models

import (
	"encoding/json"
	"time"
)

// NotificationType is the closed set of business events users are told about.
type NotificationType string

const (
	NotificationApplicationSubmitted  NotificationType = "application_submitted"
	NotificationApplicationApproved   NotificationType = "application_approved"
	NotificationApplicationRejected   NotificationType = "application_rejected"
	NotificationApplicationConfirmed  NotificationType = "application_confirmed"
	NotificationApplicationCancelled  NotificationType = "application_cancelled"
	NotificationApplicationCompleted  NotificationType = "application_completed"
	NotificationVerificationSubmitted NotificationType = "verification_submitted"
	NotificationVerificationApproved  NotificationType = "verification_approved"
	NotificationVerificationRejected  NotificationType = "verification_rejected"
	NotificationInvitationReceived    NotificationType = "invitation_received"
	NotificationInvitationAccepted    NotificationType = "invitation_accepted"
	NotificationInvitationDeclined    NotificationType = "invitation_declined"
	NotificationInvitationExpired     NotificationType = "invitation_expired"
)

// ValidNotificationTypes returns every notification type.
func ValidNotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationApplicationSubmitted,
		NotificationApplicationApproved,
		NotificationApplicationRejected,
		NotificationApplicationConfirmed,
		NotificationApplicationCancelled,
		NotificationApplicationCompleted,
		NotificationVerificationSubmitted,
		NotificationVerificationApproved,
		NotificationVerificationRejected,
		NotificationInvitationReceived,
		NotificationInvitationAccepted,
		NotificationInvitationDeclined,
		NotificationInvitationExpired,
	}
}

// IsValid reports whether the type is known.
func (t NotificationType) IsValid() bool {
	for _, v := range ValidNotificationTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Notification is an in-app message created as a side effect of a committed transition.
// Metadata is an opaque payload written by the dispatcher and never interpreted.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Link        string           `json:"link,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	Metadata    json.RawMessage  `json:"metadata,omitempty"`
	EntityKind  EntityKind       `json:"entity_kind"`
	EntityID    string           `json:"entity_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Before     *time.Time
	Limit      int
}

// DeliveryStatus is the state of an external-channel message in the outbox.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusSent       DeliveryStatus = "sent"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// Delivery is a single best-effort email queued after a transition commits.
type Delivery struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id,omitempty"`
	To             string         `json:"to"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
