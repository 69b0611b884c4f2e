package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/queue"
	qmemory "github.com/narvanalabs/locum/internal/queue/memory"
	"github.com/narvanalabs/locum/internal/store"
	"github.com/narvanalabs/locum/internal/store/memory"
)

func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	accounts := []*models.Account{
		{ID: "doc", Email: "doc@example.com", Role: models.ActorRoleDoctor},
		{ID: "owner", Email: "owner@example.com", Role: models.ActorRoleFacility},
		{ID: "rec", Email: "rec@example.com", Role: models.ActorRoleFacility},
		{ID: "admin1", Email: "admin1@example.com", Role: models.ActorRoleAdmin},
		{ID: "admin2", Email: "admin2@example.com", Role: models.ActorRoleAdmin},
	}
	for _, a := range accounts {
		if err := st.Accounts().Upsert(ctx, a); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	memberships := []*models.FacilityMembership{
		{FacilityID: "fac", UserID: "owner", Role: models.FacilityRoleOwner, Active: true},
		{FacilityID: "fac", UserID: "rec", Role: models.FacilityRoleRecruiter, Active: true},
	}
	for _, m := range memberships {
		if err := st.Memberships().Upsert(ctx, m); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}
}

func newDispatcher(t *testing.T) (*Dispatcher, *qmemory.Queue, *Broker) {
	t.Helper()
	q := qmemory.New()
	b := NewBroker(nil)
	d, err := NewDispatcher(Config{BaseURL: "https://locum.test/"}, q, b, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d, q, b
}

func TestEveryNotificationTypeHasCopy(t *testing.T) {
	tmpl, err := loadCopy(templatesYAML)
	if err != nil {
		t.Fatalf("loadCopy: %v", err)
	}
	for _, typ := range models.ValidNotificationTypes() {
		if _, ok := tmpl[typ]; !ok {
			t.Errorf("missing copy for %s", typ)
		}
	}
}

func TestRulesForWildcardAndPrecedence(t *testing.T) {
	tests := []struct {
		entity models.EntityKind
		from   string
		to     string
		want   models.NotificationType
	}{
		{models.EntityApplication, Created, "PENDING", models.NotificationApplicationSubmitted},
		{models.EntityApplication, "PENDING", "CANCELLED", models.NotificationApplicationCancelled},
		{models.EntityApplication, "DOCTOR_CONFIRMED", "CANCELLED", models.NotificationApplicationCancelled},
		{models.EntityVerification, "REJECTED", "PENDING", models.NotificationVerificationSubmitted},
		{models.EntityInvitation, "PENDING", "EXPIRED", models.NotificationInvitationExpired},
	}
	for _, tt := range tests {
		rules := RulesFor(tt.entity, tt.from, tt.to)
		if len(rules) != 1 || rules[0].Type != tt.want {
			t.Errorf("RulesFor(%s, %s, %s) = %v, want %s", tt.entity, tt.from, tt.to, rules, tt.want)
		}
	}
	if rules := RulesFor(models.EntityJob, "OPEN", "CLOSED"); len(rules) != 0 {
		t.Errorf("expected no rules for job close, got %v", rules)
	}
}

func TestRecordCancellationNotifiesEachStaffMemberOnceWithReason(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed(t, st)
	d, q, _ := newDispatcher(t)

	tr := Transition{
		Entity:      models.EntityApplication,
		EntityID:    "app-1",
		From:        "DOCTOR_CONFIRMED",
		To:          "CANCELLED",
		FacilityID:  "fac",
		JobID:       "job-1",
		JobTitle:    "Night cover",
		ApplicantID: "doc",
		Reason:      "Family emergency overseas",
	}

	var out *Outbox
	err := st.WithTx(ctx, func(tx store.Store) error {
		var err error
		out, err = d.Record(ctx, tx, tr)
		return err
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(out.Notifications) != 2 {
		t.Fatalf("expected 2 notifications (owner, recruiter), got %d", len(out.Notifications))
	}
	for _, n := range out.Notifications {
		if !strings.Contains(n.Message, tr.Reason) {
			t.Errorf("message %q does not carry the reason", n.Message)
		}
		if n.Type != models.NotificationApplicationCancelled {
			t.Errorf("unexpected type %s", n.Type)
		}
	}

	owner, _ := st.Notifications().List(ctx, "owner", models.NotificationFilter{})
	if len(owner) != 1 {
		t.Fatalf("owner should have exactly one notification, got %d", len(owner))
	}

	d.Deliver(ctx, out)
	deliveries := q.All()
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(deliveries))
	}
	if !strings.Contains(deliveries[0].Body, "https://locum.test/jobs/job-1/applications/app-1") {
		t.Errorf("email body missing absolute link: %q", deliveries[0].Body)
	}
}

func TestRecordInvitationWithoutAccountEmailsOnly(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed(t, st)
	d, _, _ := newDispatcher(t)

	tr := Transition{
		Entity:       models.EntityInvitation,
		EntityID:     "inv-1",
		From:         Created,
		To:           "PENDING",
		FacilityID:   "fac",
		InviteeEmail: "new.hire@example.com",
		InviterID:    "owner",
		Role:         models.FacilityRoleRecruiter,
		Token:        "raw-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	var out *Outbox
	_ = st.WithTx(ctx, func(tx store.Store) error {
		var err error
		out, err = d.Record(ctx, tx, tr)
		return err
	})
	if len(out.Notifications) != 0 {
		t.Fatalf("expected no in-app notification for unknown invitee, got %d", len(out.Notifications))
	}
	if len(out.Deliveries) != 1 || out.Deliveries[0].To != "new.hire@example.com" {
		t.Fatalf("expected one email to invitee, got %+v", out.Deliveries)
	}
	if !strings.Contains(out.Deliveries[0].Body, "token=raw-token") {
		t.Errorf("invitation email should carry the token link")
	}
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed(t, st)
	d, _, _ := newDispatcher(t)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Store) error {
		if _, err := d.Record(ctx, tx, Transition{
			Entity: models.EntityApplication, EntityID: "a", From: "PENDING", To: "EMPLOYER_APPROVED", ApplicantID: "doc",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := st.Notifications().UnreadCount(ctx, "doc"); n != 0 {
		t.Fatalf("notification survived rollback")
	}
}

func TestDeliverPublishesToBroker(t *testing.T) {
	d, _, b := newDispatcher(t)
	sub := b.Subscribe(context.Background(), "doc")
	defer b.Unsubscribe(sub)

	n := &models.Notification{ID: "n1", RecipientID: "doc"}
	d.Deliver(context.Background(), &Outbox{Notifications: []*models.Notification{n, {ID: "n2", RecipientID: "other"}}})

	select {
	case got := <-sub.Ch:
		if got.ID != "n1" {
			t.Fatalf("unexpected notification %s", got.ID)
		}
	default:
		t.Fatal("expected live notification")
	}
	select {
	case got := <-sub.Ch:
		t.Fatalf("received another recipient's notification %s", got.ID)
	default:
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, d *models.Delivery) error {
	return errors.New("queue down")
}
func (failingQueue) Dequeue(ctx context.Context) (*models.Delivery, error) { return nil, queue.ErrNoJobs }
func (failingQueue) Ack(ctx context.Context, id string) error              { return nil }
func (failingQueue) Fail(ctx context.Context, id, reason string) error     { return nil }

func TestDeliverSwallowsQueueFailure(t *testing.T) {
	d, err := NewDispatcher(Config{}, failingQueue{}, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	// Must not panic or propagate.
	d.Deliver(context.Background(), &Outbox{Deliveries: []*models.Delivery{{To: "a@example.com"}}})
}
