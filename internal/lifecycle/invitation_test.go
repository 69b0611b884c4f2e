package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/locum/internal/invite"
	"github.com/narvanalabs/locum/internal/models"
)

var invitee = models.Actor{ID: "new-hire", Email: "New.Hire@example.com", Role: models.ActorRoleFacility}

func (h *harness) invite(t *testing.T) *IssuedInvitation {
	t.Helper()
	ctx := context.Background()
	if err := h.store.Accounts().Upsert(ctx, &models.Account{ID: invitee.ID, Email: invitee.Email, Role: invitee.Role}); err != nil {
		t.Fatalf("seed invitee: %v", err)
	}
	issued, err := h.engine.IssueInvitation(ctx, owner, facilityID, " new.hire@EXAMPLE.com ", models.FacilityRoleRecruiter)
	if err != nil {
		t.Fatalf("IssueInvitation: %v", err)
	}
	return issued
}

func TestIssueInvitation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.invite(t)

	inv := issued.Invitation
	if inv.InviteeEmail != "new.hire@example.com" || inv.TokenHash != invite.Hash(issued.Token) {
		t.Fatalf("unexpected invitation: %+v", inv)
	}
	if strings.Contains(inv.TokenHash, issued.Token) {
		t.Fatal("raw token persisted")
	}

	notes := h.inbox(t, invitee.ID)
	if len(notes) != 1 || notes[0].Type != models.NotificationInvitationReceived {
		t.Fatalf("invitee should get one notification, got %v", notes)
	}
	if strings.Contains(notes[0].Message, issued.Token) || strings.Contains(string(notes[0].Metadata), issued.Token) {
		t.Fatal("token leaked into the in-app notification")
	}
	mails := h.queue.All()
	if len(mails) != 1 || !strings.Contains(mails[0].Body, issued.Token) {
		t.Fatalf("invitee email should carry the token link, got %v", mails)
	}

	_, err := h.engine.IssueInvitation(ctx, manager, facilityID, "x@example.com", models.FacilityRoleRecruiter)
	requireKind(t, err, KindUnauthorized)

	_, err = h.engine.IssueInvitation(ctx, owner, facilityID, "recruiter@example.com", models.FacilityRoleManager)
	requireKind(t, err, KindConflict)

	_, err = h.engine.IssueInvitation(ctx, owner, facilityID, "not-an-email", models.FacilityRoleManager)
	requireKind(t, err, KindValidationFailed)

	_, err = h.engine.IssueInvitation(ctx, owner, facilityID, "x@example.com", "janitor")
	requireKind(t, err, KindValidationFailed)
}

func TestAcceptInvitationProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.invite(t)

	inv, err := h.engine.RespondToInvitation(ctx, invitee, issued.Token, Accept)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if inv.Status != models.InvitationStatusAccepted || inv.RespondedAt == nil {
		t.Fatalf("unexpected invitation: %+v", inv)
	}
	m, err := h.store.Memberships().Get(ctx, facilityID, invitee.ID)
	if err != nil || !m.Active || m.Role != models.FacilityRoleRecruiter {
		t.Fatalf("membership not provisioned: %+v %v", m, err)
	}
	if n := len(ofType(h.inbox(t, owner.ID), models.NotificationInvitationAccepted)); n != 1 {
		t.Fatalf("inviter should be told once, got %d", n)
	}

	// The token is single use.
	_, err = h.engine.RespondToInvitation(ctx, invitee, issued.Token, Accept)
	requireKind(t, err, KindInvalidOrExpired)
}

func TestAcceptKeepsExistingMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.invite(t)

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &models.FacilityMembership{FacilityID: facilityID, UserID: invitee.ID, Role: models.FacilityRoleManager, Active: true, CreatedAt: created}
	if err := h.store.Memberships().Upsert(ctx, existing); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.engine.RespondToInvitation(ctx, invitee, issued.Token, Accept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m, _ := h.store.Memberships().Get(ctx, facilityID, invitee.ID)
	if m.Role != models.FacilityRoleManager || !m.CreatedAt.Equal(created) {
		t.Fatalf("existing membership replaced: %+v", m)
	}
}

func TestDeclineInvitation(t *testing.T) {
	h := newHarness(t)
	issued := h.invite(t)
	inv, err := h.engine.RespondToInvitation(context.Background(), invitee, issued.Token, Decline)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if inv.Status != models.InvitationStatusDeclined {
		t.Fatalf("status %s", inv.Status)
	}
	if _, err := h.store.Memberships().Get(context.Background(), facilityID, invitee.ID); err == nil {
		t.Fatal("declining provisioned a membership")
	}
	if n := len(ofType(h.inbox(t, owner.ID), models.NotificationInvitationDeclined)); n != 1 {
		t.Fatalf("inviter should be told once, got %d", n)
	}
}

// Every unredeemable token reads the same to the caller.
func TestInvitationRefusalsAreUniform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.invite(t)

	cases := []struct {
		name  string
		actor models.Actor
		token string
	}{
		{"unknown token", invitee, "definitely-not-a-token"},
		{"wrong invitee", doctor, issued.Token},
		{"empty token", invitee, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := h.engine.RespondToInvitation(ctx, c.actor, c.token, Accept)
			le := requireKind(t, err, KindInvalidOrExpired)
			if le.Error() != invalidOrExpired(false).Error() {
				t.Fatalf("message differs: %q", le.Error())
			}
		})
	}
}

// Responding after expiry fails even though the stored status is PENDING,
// and the invitation is persisted as EXPIRED.
func TestRespondAfterExpiry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("expired invitations cannot be answered", prop.ForAll(
		func(lateBy int64, accept bool) bool {
			h := newHarness(t)
			ctx := context.Background()
			issued := h.invite(t)
			h.clock.t = issued.Invitation.ExpiresAt.Add(time.Duration(lateBy) * time.Second)

			decision := Decline
			if accept {
				decision = Accept
			}
			_, err := h.engine.RespondToInvitation(ctx, invitee, issued.Token, decision)
			if !errors.Is(err, ErrInvalidOrExpired) || !errors.Is(err, ErrExpired) {
				return false
			}
			stored, err := h.store.Invitations().Get(ctx, issued.Invitation.ID)
			if err != nil || stored.Status != models.InvitationStatusExpired {
				return false
			}
			if _, err := h.store.Memberships().Get(ctx, facilityID, invitee.ID); err == nil {
				return false
			}
			return len(ofType(h.inbox(t, owner.ID), models.NotificationInvitationExpired)) == 1
		},
		gen.Int64Range(0, 30*24*3600),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRespondJustBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	issued := h.invite(t)
	h.clock.t = issued.Invitation.ExpiresAt.Add(-time.Millisecond)
	if _, err := h.engine.RespondToInvitation(context.Background(), invitee, issued.Token, Accept); err != nil {
		t.Fatalf("accept before expiry: %v", err)
	}
}

func TestExpireInvitations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.invite(t)
	fresh, err := h.engine.IssueInvitation(ctx, owner, facilityID, "later@example.com", models.FacilityRoleManager)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	n, err := h.engine.ExpireInvitations(ctx, issued.Invitation.ExpiresAt.Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("nothing is due yet: n=%d err=%v", n, err)
	}

	n, err = h.engine.ExpireInvitations(ctx, fresh.Invitation.ExpiresAt.Add(time.Second))
	if err != nil || n != 2 {
		t.Fatalf("expected 2 expired, got %d (%v)", n, err)
	}
	n, _ = h.engine.ExpireInvitations(ctx, fresh.Invitation.ExpiresAt.Add(time.Hour))
	if n != 0 {
		t.Fatalf("second sweep moved %d", n)
	}
	if got := len(ofType(h.inbox(t, owner.ID), models.NotificationInvitationExpired)); got != 2 {
		t.Fatalf("inviter should be told about each expiry, got %d", got)
	}
}

func TestParseEvents(t *testing.T) {
	if ev, err := ParseApplicationEvent(" Cancel ", "why"); err != nil || ev.(Cancel).Reason != "why" {
		t.Fatalf("ParseApplicationEvent: %v %v", ev, err)
	}
	if _, err := ParseApplicationEvent("complete", ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("complete must not be reachable by callers: %v", err)
	}
	if _, err := ParseJobEvent("fill"); err != nil {
		t.Fatalf("ParseJobEvent: %v", err)
	}
	if d, err := ParseInvitationDecision("ACCEPT"); err != nil || d != Accept {
		t.Fatalf("ParseInvitationDecision: %v %v", d, err)
	}
	if _, err := ParseVerificationDecision("maybe", ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("ParseVerificationDecision: %v", err)
	}
}
