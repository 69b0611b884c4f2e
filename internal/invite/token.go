// Package invite issues and checks single-use staff invitation tokens.
//
// The raw token is handed to the invitee once. Only its SHA-256 digest is
// persisted, so a leaked table does not leak usable tokens.
package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/narvanalabs/locum/internal/models"
)

// DefaultTTL is the default duration for invitation validity.
const DefaultTTL = 7 * 24 * time.Hour // 7 days

// tokenBytes is the amount of entropy in a token.
const tokenBytes = 32

// ErrInvalidOrExpired is the single outcome for every token that cannot be
// redeemed: unknown, already consumed, expired, or presented by someone other
// than the invitee.
var ErrInvalidOrExpired = errors.New("invitation is invalid or expired")

// Issued is a freshly generated token and the values to persist with it.
type Issued struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// Issuer generates invitation tokens.
type Issuer struct {
	ttl time.Duration
}

// NewIssuer creates an issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{ttl: ttl}
}

// TTL returns how long issued tokens remain valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue generates a new random token valid from now for the issuer's TTL.
func (i *Issuer) Issue(now time.Time) (*Issued, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return &Issued{
		Token:     token,
		Hash:      Hash(token),
		ExpiresAt: now.UTC().Add(i.ttl),
	}, nil
}

// Hash returns the hex SHA-256 digest used to look a token up.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// Check decides whether inv may be answered by email at now.
// It reports expired separately so callers can persist the EXPIRED state;
// both outcomes must be shown to the requester as ErrInvalidOrExpired.
func Check(inv *models.StaffInvitation, email string, now time.Time) (expired bool, err error) {
	if inv == nil {
		return false, ErrInvalidOrExpired
	}
	if inv.Status != models.InvitationStatusPending {
		return false, ErrInvalidOrExpired
	}
	if inv.IsExpiredAt(now) {
		return true, ErrInvalidOrExpired
	}
	if !strings.EqualFold(strings.TrimSpace(inv.InviteeEmail), strings.TrimSpace(email)) {
		return false, ErrInvalidOrExpired
	}
	return false, nil
}

// NormalizeEmail lower-cases and trims an address for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
