package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
	qmemory "github.com/narvanalabs/locum/internal/queue/memory"
	"github.com/narvanalabs/locum/internal/store"
	"github.com/narvanalabs/locum/internal/store/memory"
)

const facilityID = "fac-1"

var (
	owner     = models.Actor{ID: "owner", Email: "owner@example.com", Role: models.ActorRoleFacility}
	manager   = models.Actor{ID: "manager", Email: "manager@example.com", Role: models.ActorRoleFacility}
	recruiter = models.Actor{ID: "recruiter", Email: "recruiter@example.com", Role: models.ActorRoleFacility}
	outsider  = models.Actor{ID: "outsider", Email: "outsider@example.com", Role: models.ActorRoleFacility}
	doctor    = models.Actor{ID: "doc", Email: "doc@example.com", Role: models.ActorRoleDoctor}
	doctor2   = models.Actor{ID: "doc2", Email: "doc2@example.com", Role: models.ActorRoleDoctor}
	admin     = models.Actor{ID: "admin", Email: "admin@example.com", Role: models.ActorRoleAdmin}
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine *Engine
	store  *memory.Store
	queue  *qmemory.Queue
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.New(), nil)
}

// newHarnessWithStore seeds mem and runs the engine against wrapped, or mem
// itself when wrapped is nil.
func newHarnessWithStore(t *testing.T, mem *memory.Store, wrapped store.Store) *harness {
	t.Helper()
	ctx := context.Background()

	for _, a := range []models.Actor{owner, manager, recruiter, outsider, doctor, doctor2, admin} {
		if err := mem.Accounts().Upsert(ctx, &models.Account{ID: a.ID, Email: a.Email, Role: a.Role}); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	staff := map[string]models.FacilityRole{
		owner.ID:     models.FacilityRoleOwner,
		manager.ID:   models.FacilityRoleManager,
		recruiter.ID: models.FacilityRoleRecruiter,
	}
	for id, role := range staff {
		m := &models.FacilityMembership{FacilityID: facilityID, UserID: id, Role: role, Active: true}
		if err := mem.Memberships().Upsert(ctx, m); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}

	q := qmemory.New()
	d, err := notify.NewDispatcher(notify.Config{BaseURL: "https://locum.test"}, q, notify.NewBroker(nil), nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	var st store.Store = mem
	if wrapped != nil {
		st = wrapped
	}
	e, err := NewEngine(Deps{Store: st, Dispatcher: d, Now: c.Now})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &harness{engine: e, store: mem, queue: q, clock: c}
}

func (h *harness) job(t *testing.T) *models.Job {
	t.Helper()
	start := h.clock.Now().Add(24 * time.Hour)
	job, err := h.engine.CreateJob(context.Background(), owner, &models.Job{
		FacilityID:      facilityID,
		Title:           "Emergency department night cover",
		Urgency:         models.UrgencyUrgent,
		StartsAt:        start,
		EndsAt:          start.Add(12 * time.Hour),
		HourlyRateCents: 12000,
		Currency:        "gbp",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (h *harness) apply(t *testing.T, jobID string, doc models.Actor) *models.JobApplication {
	t.Helper()
	app, err := h.engine.SubmitApplication(context.Background(), doc, jobID)
	if err != nil {
		t.Fatalf("SubmitApplication: %v", err)
	}
	return app
}

// drive moves a fresh application on jobID to status through legal events.
func (h *harness) drive(t *testing.T, jobID string, doc models.Actor, status models.ApplicationStatus) *models.JobApplication {
	t.Helper()
	ctx := context.Background()
	app := h.apply(t, jobID, doc)
	var steps []struct {
		actor models.Actor
		ev    ApplicationEvent
	}
	add := func(a models.Actor, ev ApplicationEvent) {
		steps = append(steps, struct {
			actor models.Actor
			ev    ApplicationEvent
		}{a, ev})
	}
	switch status {
	case models.ApplicationStatusPending:
	case models.ApplicationStatusEmployerApproved:
		add(recruiter, Approve{})
	case models.ApplicationStatusDoctorConfirmed:
		add(recruiter, Approve{})
		add(doc, Confirm{})
	case models.ApplicationStatusRejected:
		add(recruiter, Reject{})
	case models.ApplicationStatusCancelled:
		add(doc, Cancel{})
	case models.ApplicationStatusCompleted:
		t.Fatalf("use job completion to reach COMPLETED")
	}
	for _, s := range steps {
		var err error
		if app, err = h.engine.TransitionApplication(ctx, s.actor, app.ID, s.ev); err != nil {
			t.Fatalf("driving to %s: %v", status, err)
		}
	}
	return app
}

func (h *harness) inbox(t *testing.T, userID string) []*models.Notification {
	t.Helper()
	notes, err := h.store.Notifications().List(context.Background(), userID, models.NotificationFilter{})
	if err != nil {
		t.Fatalf("List notifications: %v", err)
	}
	return notes
}

func ofType(notes []*models.Notification, typ models.NotificationType) []*models.Notification {
	var out []*models.Notification
	for _, n := range notes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var le *Error
	if !errors.As(err, &le) || le.Kind != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	return le
}

// faultyStore fails the nth application status write inside a transaction.
type faultyStore struct {
	*memory.Store
	failAt int
	calls  int
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&faultyTx{Store: tx, parent: f})
	})
}

type faultyTx struct {
	store.Store
	parent *faultyStore
}

func (t *faultyTx) Applications() store.ApplicationStore {
	return &faultyApps{ApplicationStore: t.Store.Applications(), parent: t.parent}
}

func (t *faultyTx) WithTx(ctx context.Context, fn func(store.Store) error) error { return fn(t) }

type faultyApps struct {
	store.ApplicationStore
	parent *faultyStore
}

var errInjected = errors.New("injected write failure")

func (a *faultyApps) UpdateStatus(ctx context.Context, app *models.JobApplication, expected models.ApplicationStatus) error {
	a.parent.calls++
	if a.parent.failAt > 0 && a.parent.calls == a.parent.failAt {
		return errInjected
	}
	return a.ApplicationStore.UpdateStatus(ctx, app, expected)
}
