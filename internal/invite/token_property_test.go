package invite

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/locum/internal/models"
)

// Issued tokens are unique, carry 32 bytes of entropy, and hash to the digest
// stored alongside them.

func TestIssueProducesDistinctTokens(t *testing.T) {
	issuer := NewIssuer(0)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		issued, err := issuer.Issue(time.Now())
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if len(issued.Token) != 43 {
			t.Fatalf("expected 43-char base64url token, got %d", len(issued.Token))
		}
		if seen[issued.Token] {
			t.Fatalf("duplicate token %q", issued.Token)
		}
		seen[issued.Token] = true
		if Hash(issued.Token) != issued.Hash {
			t.Fatalf("hash mismatch")
		}
		if issued.Hash == issued.Token {
			t.Fatalf("hash must differ from raw token")
		}
	}
}

func TestIssueUsesTTL(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := NewIssuer(48 * time.Hour)

	issued, err := issuer.Issue(fixed)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !issued.ExpiresAt.Equal(fixed.Add(48 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", issued.ExpiresAt)
	}
	if NewIssuer(-time.Second).TTL() != DefaultTTL {
		t.Fatalf("expected default TTL fallback")
	}
}

func genInvitationStatus() gopter.Gen {
	return gen.OneConstOf(
		models.InvitationStatusPending,
		models.InvitationStatusAccepted,
		models.InvitationStatusDeclined,
		models.InvitationStatusExpired,
	)
}

// Any invitation that is not pending, is expired, or is answered by someone
// other than the invitee fails with the single ErrInvalidOrExpired outcome.
func TestCheckUniformOutcome(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	properties.Property("check succeeds only for pending, unexpired, matching invitations", prop.ForAll(
		func(status models.InvitationStatus, offsetMinutes int, sameEmail bool) bool {
			inv := &models.StaffInvitation{
				InviteeEmail: "invitee@example.com",
				Status:       status,
				ExpiresAt:    now.Add(time.Duration(offsetMinutes) * time.Minute),
			}
			email := "INVITEE@example.com"
			if !sameEmail {
				email = "other@example.com"
			}

			expired, err := Check(inv, email, now)
			valid := status == models.InvitationStatusPending && offsetMinutes > 0 && sameEmail
			if valid {
				return err == nil && !expired
			}
			if err != ErrInvalidOrExpired {
				return false
			}
			wantExpired := status == models.InvitationStatusPending && offsetMinutes <= 0
			return expired == wantExpired
		},
		genInvitationStatus(),
		gen.IntRange(-600, 600),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCheckNilInvitation(t *testing.T) {
	if _, err := Check(nil, "a@example.com", time.Now()); err != ErrInvalidOrExpired {
		t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
	}
}
