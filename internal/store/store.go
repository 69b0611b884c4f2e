// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/narvanalabs/locum/internal/models"
)

// JobStore defines operations for posted shifts.
type JobStore interface {
	// Create inserts a new job.
	Create(ctx context.Context, job *models.Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*models.Job, error)
	// GetForUpdate retrieves a job and locks it until the enclosing
	// transaction ends. Operations that read a job and then write its
	// applications take this lock first.
	GetForUpdate(ctx context.Context, id string) (*models.Job, error)
	// UpdateStatus writes job.Status only if the stored status still equals expected.
	// Returns ErrStaleState when the row exists with a different status.
	UpdateStatus(ctx context.Context, job *models.Job, expected models.JobStatus) error
	// Delete permanently removes a job.
	Delete(ctx context.Context, id string) error
}

// ApplicationStore defines operations for job applications.
type ApplicationStore interface {
	// Create inserts a new application.
	// Returns ErrDuplicate if the doctor already holds a non-terminal application on the job.
	Create(ctx context.Context, app *models.JobApplication) error
	// Get retrieves an application by ID.
	Get(ctx context.Context, id string) (*models.JobApplication, error)
	// ListByJob retrieves all applications for a job, oldest first.
	ListByJob(ctx context.Context, jobID string) ([]*models.JobApplication, error)
	// FindActive returns the doctor's non-terminal application on a job, or ErrNotFound.
	FindActive(ctx context.Context, jobID, doctorID string) (*models.JobApplication, error)
	// UpdateStatus writes the status, cancellation reason and review timestamp
	// only if the stored status still equals expected.
	UpdateStatus(ctx context.Context, app *models.JobApplication, expected models.ApplicationStatus) error
	// DeleteByJob removes the terminal applications of a job and returns how
	// many were removed. Live applications are kept.
	DeleteByJob(ctx context.Context, jobID string) (int, error)
}

// VerificationStore defines operations for credential verifications.
type VerificationStore interface {
	// Create inserts a new verification.
	Create(ctx context.Context, v *models.Verification) error
	// Get retrieves a verification by ID.
	Get(ctx context.Context, id string) (*models.Verification, error)
	// Latest retrieves the most recently submitted verification for a subject.
	Latest(ctx context.Context, kind models.SubjectKind, subjectID string) (*models.Verification, error)
	// UpdateStatus writes the mutable fields only if the stored status still equals expected.
	UpdateStatus(ctx context.Context, v *models.Verification, expected models.VerificationStatus) error
}

// InvitationStore defines operations for staff invitations.
type InvitationStore interface {
	// Create inserts a new invitation.
	Create(ctx context.Context, inv *models.StaffInvitation) error
	// Get retrieves an invitation by ID.
	Get(ctx context.Context, id string) (*models.StaffInvitation, error)
	// GetByTokenHash retrieves an invitation by the hash of its token.
	GetByTokenHash(ctx context.Context, hash string) (*models.StaffInvitation, error)
	// UpdateStatus writes the status and response time only if the stored status
	// still equals expected. When validAt is non-nil the write also requires
	// expires_at to be after it.
	UpdateStatus(ctx context.Context, inv *models.StaffInvitation, expected models.InvitationStatus, validAt *time.Time) error
	// ListExpired returns up to limit PENDING invitations whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.StaffInvitation, error)
}

// NotificationStore defines operations for in-app notifications.
// Every read and write is scoped to a recipient; another recipient's
// notification is reported as ErrNotFound.
type NotificationStore interface {
	// Create inserts a new notification.
	Create(ctx context.Context, n *models.Notification) error
	// List retrieves a recipient's notifications, newest first.
	List(ctx context.Context, recipientID string, filter models.NotificationFilter) ([]*models.Notification, error)
	// UnreadCount returns the number of unread notifications for a recipient.
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	// MarkRead sets is_read on one notification. Already-read notifications are left unchanged.
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error)
	// MarkAllRead marks every unread notification of a recipient and returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	// Delete permanently removes one notification.
	Delete(ctx context.Context, recipientID, id string) error
}

// MembershipStore defines operations for facility staff memberships.
type MembershipStore interface {
	// Get retrieves the membership of a user in a facility.
	Get(ctx context.Context, facilityID, userID string) (*models.FacilityMembership, error)
	// Upsert creates or replaces a membership.
	Upsert(ctx context.Context, m *models.FacilityMembership) error
	// ListActive retrieves all active memberships of a facility.
	ListActive(ctx context.Context, facilityID string) ([]*models.FacilityMembership, error)
}

// AccountStore is the read-mostly user directory.
type AccountStore interface {
	// Get retrieves an account by ID.
	Get(ctx context.Context, id string) (*models.Account, error)
	// GetByEmail retrieves an account by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// ListByRole retrieves all accounts with a platform role.
	ListByRole(ctx context.Context, role models.ActorRole) ([]*models.Account, error)
	// Upsert creates or replaces an account.
	Upsert(ctx context.Context, a *models.Account) error
}

// Store is the main interface for database operations.
type Store interface {
	// Jobs returns the JobStore.
	Jobs() JobStore
	// Applications returns the ApplicationStore.
	Applications() ApplicationStore
	// Verifications returns the VerificationStore.
	Verifications() VerificationStore
	// Invitations returns the InvitationStore.
	Invitations() InvitationStore
	// Notifications returns the NotificationStore.
	Notifications() NotificationStore
	// Memberships returns the MembershipStore.
	Memberships() MembershipStore
	// Accounts returns the AccountStore.
	Accounts() AccountStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
