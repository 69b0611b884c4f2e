// Package notify turns committed lifecycle transitions into in-app
// notifications and best-effort external nudges, and serves the inbox.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
	"github.com/narvanalabs/locum/internal/store"
)

// ErrExternalChannel marks a failed external nudge. It is logged and never
// returned to the caller of a transition.
var ErrExternalChannel = errors.New("external channel failure")

// Transition describes a committed state change and the context needed to
// resolve its audience and render its copy.
type Transition struct {
	Entity   models.EntityKind
	EntityID string
	From     string
	To       string
	ActorID  string

	FacilityID  string
	JobID       string
	JobTitle    string
	ApplicantID string

	SubjectKind models.SubjectKind
	SubjectID   string

	InviteeEmail string
	InviterID    string
	Role         models.FacilityRole
	ExpiresAt    time.Time
	// Token is the raw invitation token. It is rendered into the invitee's
	// email only and never persisted in notification records.
	Token string

	Reason string
}

type templateData struct {
	EntityID     string
	JobID        string
	JobTitle     string
	FacilityID   string
	Reason       string
	Role         string
	SubjectKind  string
	InviteeEmail string
	BaseURL      string
	Token        string
	ExpiresAt    string
}

// Outbox holds what a committed transition produced. Notifications are
// already persisted; Deliveries are sent after commit.
type Outbox struct {
	Notifications []*models.Notification
	Deliveries    []*models.Delivery
}

// Merge appends other to o.
func (o *Outbox) Merge(other *Outbox) {
	if other == nil {
		return
	}
	o.Notifications = append(o.Notifications, other.Notifications...)
	o.Deliveries = append(o.Deliveries, other.Deliveries...)
}

// Config holds dispatcher settings.
type Config struct {
	// BaseURL prefixes links in email bodies.
	BaseURL string
}

// Dispatcher records notifications and pushes external nudges.
type Dispatcher struct {
	copy    map[models.NotificationType]*copyTemplates
	queue   queue.Queue
	broker  *Broker
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. q and broker may be nil, in which case
// the corresponding channel is skipped.
func NewDispatcher(cfg Config, q queue.Queue, broker *Broker, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := loadCopy(templatesYAML)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		copy:    tmpl,
		queue:   q,
		broker:  broker,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With("component", "notify"),
		now:     time.Now,
	}, nil
}

// recipient is a resolved audience member. UserID is empty for an invitee
// without an account, who can only be reached by email.
type recipient struct {
	UserID string
	Email  string
}

// Record persists one notification per distinct recipient of t using tx,
// which must be the transaction committing t. It returns the deliveries to
// send once the transaction commits.
func (d *Dispatcher) Record(ctx context.Context, tx store.Store, t Transition) (*Outbox, error) {
	out := &Outbox{}
	rules := RulesFor(t.Entity, t.From, t.To)
	if len(rules) == 0 {
		return out, nil
	}

	seen := make(map[string]bool)
	for _, rule := range rules {
		recipients, err := d.resolve(ctx, tx, rule.Audience, t)
		if err != nil {
			return nil, fmt.Errorf("resolving %s audience: %w", rule.Audience, err)
		}

		ct := d.copy[rule.Type]
		r, err := ct.render(d.data(t))
		if err != nil {
			return nil, err
		}

		for _, rc := range recipients {
			key := rc.UserID
			if key == "" {
				key = "email:" + strings.ToLower(rc.Email)
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			var note *models.Notification
			if rc.UserID != "" {
				note, err = d.persist(ctx, tx, rc.UserID, rule.Type, r, t)
				if err != nil {
					return nil, err
				}
				out.Notifications = append(out.Notifications, note)
			}

			if rc.Email != "" {
				delivery := &models.Delivery{
					To:      rc.Email,
					Subject: r.Title,
					Body:    r.EmailBody,
				}
				if note != nil {
					delivery.NotificationID = note.ID
				}
				out.Deliveries = append(out.Deliveries, delivery)
			}
		}
	}
	return out, nil
}

func (d *Dispatcher) persist(ctx context.Context, tx store.Store, userID string, typ models.NotificationType, r *rendered, t Transition) (*models.Notification, error) {
	meta := map[string]string{
		"from": t.From,
		"to":   t.To,
	}
	if t.JobID != "" {
		meta["job_id"] = t.JobID
	}
	if t.FacilityID != "" {
		meta["facility_id"] = t.FacilityID
	}
	if t.Reason != "" {
		meta["reason"] = t.Reason
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling notification metadata: %w", err)
	}

	note := &models.Notification{
		RecipientID: userID,
		Type:        typ,
		Title:       r.Title,
		Message:     r.Message,
		Link:        r.Link,
		Metadata:    raw,
		EntityKind:  t.Entity,
		EntityID:    t.EntityID,
		CreatedAt:   d.now().UTC(),
	}
	if err := tx.Notifications().Create(ctx, note); err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	return note, nil
}

func (d *Dispatcher) data(t Transition) templateData {
	data := templateData{
		EntityID:     t.EntityID,
		JobID:        t.JobID,
		JobTitle:     t.JobTitle,
		FacilityID:   t.FacilityID,
		Reason:       t.Reason,
		Role:         string(t.Role),
		SubjectKind:  string(t.SubjectKind),
		InviteeEmail: t.InviteeEmail,
		BaseURL:      d.baseURL,
		Token:        t.Token,
	}
	if !t.ExpiresAt.IsZero() {
		data.ExpiresAt = t.ExpiresAt.UTC().Format(time.RFC1123)
	}
	return data
}

func (d *Dispatcher) resolve(ctx context.Context, tx store.Store, audience Audience, t Transition) ([]recipient, error) {
	switch audience {
	case AudienceApplicant:
		return d.users(ctx, tx, t.ApplicantID)
	case AudienceInviter:
		return d.users(ctx, tx, t.InviterID)
	case AudienceFacilityStaff:
		ids, err := auth.StaffWith(ctx, tx.Memberships(), t.FacilityID, auth.PermissionReviewApplications)
		if err != nil {
			return nil, err
		}
		return d.users(ctx, tx, ids...)
	case AudienceSubject:
		if t.SubjectKind == models.SubjectFacility {
			ids, err := auth.StaffWith(ctx, tx.Memberships(), t.SubjectID, auth.PermissionManageFacility)
			if err != nil {
				return nil, err
			}
			return d.users(ctx, tx, ids...)
		}
		return d.users(ctx, tx, t.SubjectID)
	case AudienceAdmins:
		admins, err := tx.Accounts().ListByRole(ctx, models.ActorRoleAdmin)
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(admins))
		for _, a := range admins {
			out = append(out, recipient{UserID: a.ID, Email: a.Email})
		}
		return out, nil
	case AudienceInvitee:
		rc := recipient{Email: t.InviteeEmail}
		acct, err := tx.Accounts().GetByEmail(ctx, t.InviteeEmail)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if acct != nil {
			rc.UserID = acct.ID
		}
		return []recipient{rc}, nil
	default:
		return nil, fmt.Errorf("unknown audience %q", audience)
	}
}

// users resolves user IDs to recipients, looking up their email in the account
// directory. Users without a directory entry are notified in-app only.
func (d *Dispatcher) users(ctx context.Context, tx store.Store, ids ...string) ([]recipient, error) {
	out := make([]recipient, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		rc := recipient{UserID: id}
		acct, err := tx.Accounts().Get(ctx, id)
		switch {
		case err == nil:
			rc.Email = acct.Email
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

// Deliver pushes the outbox to the live broker and the email queue. It runs
// after commit; failures are logged as ErrExternalChannel and swallowed.
func (d *Dispatcher) Deliver(ctx context.Context, out *Outbox) {
	if out == nil {
		return
	}

	if d.broker != nil {
		for _, n := range out.Notifications {
			if dropped := d.broker.Publish(n); dropped > 0 {
				d.logger.WarnContext(ctx, "live notification dropped",
					"error", ErrExternalChannel,
					"notification_id", n.ID,
					"dropped", dropped,
				)
			}
		}
	}

	if d.queue == nil {
		return
	}
	for _, delivery := range out.Deliveries {
		if err := d.queue.Enqueue(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "failed to enqueue delivery",
				"error", fmt.Errorf("%w: %v", ErrExternalChannel, err),
				"notification_id", delivery.NotificationID,
			)
		}
	}
}
