package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/internal/api/middleware"
	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/idempotency"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/store/memory"
	"github.com/narvanalabs/locum/pkg/config"
)

const facilityID = "fac-1"

var (
	owner  = models.Account{ID: "owner", Email: "owner@example.com", Role: models.ActorRoleFacility}
	doctor = models.Account{ID: "doc", Email: "doc@example.com", Role: models.ActorRoleDoctor}
)

type testAPI struct {
	t      *testing.T
	server *Server
	auth   *auth.Service
	broker *notify.Broker
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	for _, a := range []models.Account{owner, doctor} {
		acct := a
		if err := mem.Accounts().Upsert(ctx, &acct); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	if err := mem.Memberships().Upsert(ctx, &models.FacilityMembership{
		FacilityID: facilityID, UserID: owner.ID, Role: models.FacilityRoleOwner, Active: true,
	}); err != nil {
		t.Fatalf("seed membership: %v", err)
	}

	broker := notify.NewBroker(nil)
	dispatcher, err := notify.NewDispatcher(notify.Config{BaseURL: "https://locum.test"}, nil, broker, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	engine, err := lifecycle.NewEngine(lifecycle.Deps{Store: mem, Dispatcher: dispatcher})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cfg := config.LoadWithDefaults()
	authSvc := auth.NewService(&auth.Config{JWTSecret: []byte(cfg.JWTSecret), TokenExpiry: time.Hour}, nil)
	srv := NewServer(Deps{
		Config:      cfg,
		Store:       mem,
		Engine:      engine,
		Inbox:       notify.NewInbox(mem),
		Broker:      broker,
		Auth:        authSvc,
		Idempotency: idempotency.NewMemoryStore(time.Hour),
	})
	return &testAPI{t: t, server: srv, auth: authSvc, broker: broker}
}

func (a *testAPI) token(acct models.Account) string {
	a.t.Helper()
	tok, err := a.auth.GenerateToken(acct.ID, acct.Email, acct.Role)
	if err != nil {
		a.t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (a *testAPI) do(as *models.Account, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(*as))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rr.Code, status, rr.Body.String())
	}
}

func (a *testAPI) createJob() models.Job {
	a.t.Helper()
	start := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(60 * time.Hour).UTC().Format(time.RFC3339)
	rr := a.do(&owner, http.MethodPost, "/v1/jobs", `{"facility_id":"`+facilityID+`","title":"Night cover","starts_at":"`+start+`","ends_at":"`+end+`","hourly_rate_cents":9000,"currency":"eur"}`)
	expect(a.t, rr, http.StatusCreated)
	return decode[models.Job](a.t, rr)
}

func (a *testAPI) apply(jobID string) models.JobApplication {
	a.t.Helper()
	rr := a.do(&doctor, http.MethodPost, "/v1/jobs/"+jobID+"/applications", "")
	expect(a.t, rr, http.StatusCreated)
	return decode[models.JobApplication](a.t, rr)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(nil, http.MethodGet, "/health", "")
	expect(t, rr, http.StatusOK)
}

func TestRequiresSession(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(nil, http.MethodPost, "/v1/jobs", `{}`)
	expect(t, rr, http.StatusUnauthorized)
	if code := decode[apierrors.APIError](t, rr).Code; code != apierrors.CodeUnauthenticated {
		t.Fatalf("code = %s", code)
	}
}

func TestApplicationFlowNotifiesApplicant(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	if job.Status != models.JobStatusOpen || job.Currency != "EUR" {
		t.Fatalf("job = %+v", job)
	}
	app := api.apply(job.ID)

	rr := api.do(&owner, http.MethodPost, "/v1/applications/"+app.ID+"/events", `{"event":"approve"}`)
	expect(t, rr, http.StatusOK)
	if got := decode[models.JobApplication](t, rr).Status; got != models.ApplicationStatusEmployerApproved {
		t.Fatalf("status = %s", got)
	}

	rr = api.do(&doctor, http.MethodGet, "/v1/notifications/unread-count", "")
	expect(t, rr, http.StatusOK)
	if n := decode[map[string]int](t, rr)["count"]; n != 1 {
		t.Fatalf("unread = %d", n)
	}

	rr = api.do(&doctor, http.MethodGet, "/v1/notifications?type=application_approved&unread=true", "")
	expect(t, rr, http.StatusOK)
	list := decode[map[string][]models.Notification](t, rr)["notifications"]
	if len(list) != 1 || list[0].EntityID != app.ID {
		t.Fatalf("notifications = %+v", list)
	}

	rr = api.do(&doctor, http.MethodPost, "/v1/notifications/"+list[0].ID+"/read", "")
	expect(t, rr, http.StatusOK)
	if !decode[models.Notification](t, rr).IsRead {
		t.Fatal("notification not marked read")
	}

	rr = api.do(&owner, http.MethodPost, "/v1/notifications/"+list[0].ID+"/read", "")
	expect(t, rr, http.StatusNotFound)

	rr = api.do(&doctor, http.MethodDelete, "/v1/notifications/"+list[0].ID, "")
	expect(t, rr, http.StatusNoContent)
}

func TestStaleTransitionReportsCurrentState(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	app := api.apply(job.ID)

	rr := api.do(&doctor, http.MethodPost, "/v1/applications/"+app.ID+"/events", `{"event":"cancel"}`)
	expect(t, rr, http.StatusOK)

	rr = api.do(&owner, http.MethodPost, "/v1/applications/"+app.ID+"/events", `{"event":"approve"}`)
	expect(t, rr, http.StatusConflict)
	body := decode[apierrors.APIError](t, rr)
	if body.Code != apierrors.CodeStaleState || body.Details["current_state"] != string(models.ApplicationStatusCancelled) {
		t.Fatalf("body = %+v", body)
	}
}

func TestRefusals(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()

	tests := []struct {
		name   string
		as     models.Account
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"doctor closes job", doctor, http.MethodPost, "/v1/jobs/" + job.ID + "/events", `{"event":"close"}`, http.StatusForbidden, apierrors.CodeUnauthorized},
		{"unknown event", owner, http.MethodPost, "/v1/jobs/" + job.ID + "/events", `{"event":"explode"}`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"missing title", owner, http.MethodPost, "/v1/jobs", `{"facility_id":"fac-1","title":" "}`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"malformed body", owner, http.MethodPost, "/v1/jobs", `{"title":`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"unknown job", doctor, http.MethodPost, "/v1/jobs/nope/applications", "", http.StatusNotFound, apierrors.CodeNotFound},
		{"bogus invitation", doctor, http.MethodPost, "/v1/invitations/respond", `{"token":"not-a-token","decision":"accept"}`, http.StatusGone, apierrors.CodeInvalidOrExpired},
		{"bad inbox filter", doctor, http.MethodGet, "/v1/notifications?limit=-1", "", http.StatusBadRequest, apierrors.CodeValidationError},
		{"unknown inbox type", doctor, http.MethodGet, "/v1/notifications?type=gossip", "", http.StatusBadRequest, apierrors.CodeValidationError},
		{"credentials for non-admin", doctor, http.MethodGet, "/v1/verifications/v1/credentials", "", http.StatusNotFound, apierrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := tt.as
			rr := api.do(&as, tt.method, tt.path, tt.body)
			expect(t, rr, tt.status)
			if code := decode[apierrors.APIError](t, rr).Code; code != tt.code {
				t.Fatalf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestCancelJobWithActiveApplicationsHasDependents(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	api.apply(job.ID)

	rr := api.do(&owner, http.MethodPost, "/v1/jobs/"+job.ID+"/events", `{"event":"cancel"}`)
	expect(t, rr, http.StatusConflict)
	if code := decode[apierrors.APIError](t, rr).Code; code != apierrors.CodeHasDependents {
		t.Fatalf("code = %s", code)
	}
}

func TestIdempotentApplicationSubmit(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	path := "/v1/jobs/" + job.ID + "/applications"

	first := api.do(&doctor, http.MethodPost, path, "", middleware.IdempotencyKeyHeader, "apply-once")
	second := api.do(&doctor, http.MethodPost, path, "", middleware.IdempotencyKeyHeader, "apply-once")
	expect(t, first, http.StatusCreated)
	expect(t, second, http.StatusCreated)
	if first.Body.String() != second.Body.String() || second.Header().Get(middleware.ReplayedHeader) != "true" {
		t.Fatalf("retry was not replayed: %s vs %s", first.Body.String(), second.Body.String())
	}

	third := api.do(&doctor, http.MethodPost, path, "", middleware.IdempotencyKeyHeader, "apply-twice")
	expect(t, third, http.StatusConflict)
}

func TestInvitationResponseOmitsToken(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(&owner, http.MethodPost, "/v1/facilities/"+facilityID+"/invitations", `{"email":"new@example.com","role":"recruiter"}`)
	expect(t, rr, http.StatusCreated)
	body := decode[map[string]any](t, rr)
	if _, ok := body["token"]; ok {
		t.Fatal("raw token leaked in response")
	}
	if body["status"] != string(models.InvitationStatusPending) {
		t.Fatalf("invitation = %+v", body)
	}
}

func TestNotificationStream(t *testing.T) {
	api := newTestAPI(t)
	ts := httptest.NewServer(api.server.Router())
	defer ts.Close()
	defer api.server.CloseStreams()

	job := api.createJob()
	app := api.apply(job.ID)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications/ws?access_token=" + api.token(doctor)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for api.broker.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expect(t, api.do(&owner, http.MethodPost, "/v1/applications/"+app.ID+"/events", `{"event":"approve"}`), http.StatusOK)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n models.Notification
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if n.Type != models.NotificationApplicationApproved || n.RecipientID != doctor.ID {
		t.Fatalf("notification = %+v", n)
	}
}
