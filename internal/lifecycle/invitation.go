package lifecycle

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/invite"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/store"
)

// expireBatch is how many invitations ExpireInvitations loads per round.
const expireBatch = 100

// IssuedInvitation is a new invitation and the raw token for the invitee.
// The token is not recoverable afterwards.
type IssuedInvitation struct {
	Token      string                  `json:"token"`
	Invitation *models.StaffInvitation `json:"invitation"`
}

// IssueInvitation invites email to join facilityID with role.
func (e *Engine) IssueInvitation(ctx context.Context, actor models.Actor, facilityID, email string, role models.FacilityRole) (*IssuedInvitation, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, invalid("email", "a valid email address is required")
	}
	email = invite.NormalizeEmail(addr.Address)
	if !role.IsValid() {
		return nil, invalid("role", "role must be owner, manager, or recruiter")
	}

	issued, err := e.issuer.Issue(e.clock())
	if err != nil {
		return nil, err
	}

	var inv *models.StaffInvitation
	err = e.commit(ctx, func(u *unit) error {
		if err := e.guard.requireFacility(ctx, u.tx, actor, facilityID, auth.PermissionManageStaff, "invitation", ""); err != nil {
			return err
		}

		acct, err := u.tx.Accounts().GetByEmail(ctx, email)
		switch {
		case err == nil:
			if active, err := hasActiveMembership(ctx, u.tx, facilityID, acct.ID); err != nil {
				return err
			} else if active {
				return conflict("invitation", "", "invitee is already a member of this facility")
			}
		case !errors.Is(err, store.ErrNotFound):
			return storeErr("invitation", "", err)
		}

		inv = &models.StaffInvitation{
			FacilityID:   facilityID,
			InviteeEmail: email,
			Role:         role,
			TokenHash:    issued.Hash,
			Status:       models.InvitationStatusPending,
			InvitedBy:    actor.ID,
			ExpiresAt:    issued.ExpiresAt,
			CreatedAt:    e.clock(),
		}
		if err := u.tx.Invitations().Create(ctx, inv); err != nil {
			return storeErr("invitation", "", err)
		}

		t := invitationTransition(inv, notify.Created, actor.ID)
		t.Token = issued.Token
		return u.record(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "invitation issued",
		"invitation_id", inv.ID,
		"facility_id", facilityID,
		"role", role,
		"expires_at", inv.ExpiresAt,
	)
	return &IssuedInvitation{Token: issued.Token, Invitation: inv}, nil
}

// RespondToInvitation answers the invitation identified by token on behalf of
// actor, who must be the invitee. Every refusal is InvalidOrExpired. A PENDING
// invitation found past its expiry is persisted as EXPIRED first.
func (e *Engine) RespondToInvitation(ctx context.Context, actor models.Actor, token string, decision InvitationDecision) (*models.StaffInvitation, error) {
	if decision != Accept && decision != Decline {
		return nil, invalid("decision", "decision must be accept or decline")
	}
	if token == "" || actor.ID == "" {
		return nil, invalidOrExpired(false)
	}

	now := e.clock()
	var (
		inv     *models.StaffInvitation
		expired bool
	)
	err := e.commit(ctx, func(u *unit) error {
		var err error
		inv, err = u.tx.Invitations().GetByTokenHash(ctx, invite.Hash(token))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalidOrExpired(false)
			}
			return err
		}
		if expired, err = invite.Check(inv, actor.Email, now); err != nil {
			return invalidOrExpired(expired)
		}

		inv.Status = models.InvitationStatusDeclined
		if decision == Accept {
			inv.Status = models.InvitationStatusAccepted
		}
		inv.RespondedAt = &now

		// The write re-checks expiry against now, so a token that was valid
		// when read cannot be redeemed after it lapses.
		if err := u.tx.Invitations().UpdateStatus(ctx, inv, models.InvitationStatusPending, &now); err != nil {
			if !errors.Is(err, store.ErrStaleState) {
				return err
			}
			cur, gerr := u.tx.Invitations().Get(ctx, inv.ID)
			if gerr != nil {
				return gerr
			}
			expired = cur.Status == models.InvitationStatusPending
			return invalidOrExpired(expired)
		}

		if inv.Status == models.InvitationStatusAccepted {
			if err := e.provision(ctx, u.tx, inv, actor.ID); err != nil {
				return err
			}
		}
		return u.record(ctx, invitationTransition(inv, string(models.InvitationStatusPending), actor.ID))
	})
	if err != nil {
		if expired && inv != nil {
			if _, xerr := e.expireInvitation(ctx, inv.ID, now); xerr != nil {
				e.logger.ErrorContext(ctx, "failed to expire invitation", "invitation_id", inv.ID, "error", xerr)
			}
		}
		if KindOf(err) == KindInvalidOrExpired {
			e.logger.DebugContext(ctx, "invitation response refused", "expired", expired)
		}
		return nil, err
	}

	e.logger.InfoContext(ctx, "invitation answered",
		"invitation_id", inv.ID,
		"status", inv.Status,
	)
	return inv, nil
}

// provision grants the invitee the invited role unless they already hold an
// active membership in the facility.
func (e *Engine) provision(ctx context.Context, tx store.Store, inv *models.StaffInvitation, userID string) error {
	active, err := hasActiveMembership(ctx, tx, inv.FacilityID, userID)
	if err != nil || active {
		return err
	}
	return tx.Memberships().Upsert(ctx, &models.FacilityMembership{
		FacilityID: inv.FacilityID,
		UserID:     userID,
		Role:       inv.Role,
		Active:     true,
		CreatedAt:  e.clock(),
	})
}

func hasActiveMembership(ctx context.Context, tx store.Store, facilityID, userID string) (bool, error) {
	m, err := tx.Memberships().Get(ctx, facilityID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return m.Active, nil
}

// ExpireInvitations moves every PENDING invitation past its expiry at now to
// EXPIRED and returns how many it moved.
func (e *Engine) ExpireInvitations(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		batch, err := e.store.Invitations().ListExpired(ctx, now, expireBatch)
		if err != nil {
			return total, err
		}
		moved := 0
		for _, inv := range batch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ok, err := e.expireInvitation(ctx, inv.ID, now)
			if err != nil {
				return total, err
			}
			if ok {
				moved++
			}
		}
		total += moved
		if len(batch) < expireBatch || moved == 0 {
			return total, nil
		}
	}
}

// expireInvitation persists EXPIRED for a PENDING invitation whose expiry is
// at or before now. It reports false if the invitation was already answered
// or is not yet due.
func (e *Engine) expireInvitation(ctx context.Context, id string, now time.Time) (bool, error) {
	moved := false
	err := e.commit(ctx, func(u *unit) error {
		inv, err := u.tx.Invitations().Get(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvitationStatusPending || !inv.IsExpiredAt(now) {
			return nil
		}
		inv.Status = models.InvitationStatusExpired
		if err := u.tx.Invitations().UpdateStatus(ctx, inv, models.InvitationStatusPending, nil); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				return nil
			}
			return err
		}
		moved = true
		return u.record(ctx, invitationTransition(inv, string(models.InvitationStatusPending), ""))
	})
	if err != nil {
		return false, err
	}
	if moved {
		e.logger.InfoContext(ctx, "invitation expired", "invitation_id", id)
	}
	return moved, nil
}

func invitationTransition(inv *models.StaffInvitation, from, actorID string) notify.Transition {
	return notify.Transition{
		Entity:       models.EntityInvitation,
		EntityID:     inv.ID,
		From:         from,
		To:           string(inv.Status),
		ActorID:      actorID,
		FacilityID:   inv.FacilityID,
		InviteeEmail: inv.InviteeEmail,
		InviterID:    inv.InvitedBy,
		Role:         inv.Role,
		ExpiresAt:    inv.ExpiresAt,
	}
}
