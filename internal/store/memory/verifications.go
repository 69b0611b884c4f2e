package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

type verificationStore struct{ s scope }

func (v *verificationStore) Create(ctx context.Context, ver *models.Verification) error {
	if ver.ID == "" {
		ver.ID = uuid.New().String()
	}
	if ver.SubmittedAt.IsZero() {
		ver.SubmittedAt = time.Now().UTC()
	}
	if ver.Status == "" {
		ver.Status = models.VerificationStatusPending
	}
	return v.s.do(func(d *dataset) error {
		if _, ok := d.verifications[ver.ID]; ok {
			return store.ErrDuplicate
		}
		d.verifications[ver.ID] = copyVerification(*ver)
		return nil
	})
}

func (v *verificationStore) Get(ctx context.Context, id string) (*models.Verification, error) {
	var out models.Verification
	err := v.s.do(func(d *dataset) error {
		ver, ok := d.verifications[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyVerification(ver)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *verificationStore) Latest(ctx context.Context, kind models.SubjectKind, subjectID string) (*models.Verification, error) {
	var out *models.Verification
	err := v.s.do(func(d *dataset) error {
		for _, ver := range d.verifications {
			if ver.SubjectKind != kind || ver.SubjectID != subjectID {
				continue
			}
			if out == nil || ver.SubmittedAt.After(out.SubmittedAt) ||
				(ver.SubmittedAt.Equal(out.SubmittedAt) && ver.ID > out.ID) {
				c := copyVerification(ver)
				out = &c
			}
		}
		if out == nil {
			return store.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (v *verificationStore) UpdateStatus(ctx context.Context, ver *models.Verification, expected models.VerificationStatus) error {
	return v.s.do(func(d *dataset) error {
		cur, ok := d.verifications[ver.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Status != expected {
			return store.ErrStaleState
		}
		next := copyVerification(*ver)
		next.SubjectKind = cur.SubjectKind
		next.SubjectID = cur.SubjectID
		d.verifications[ver.ID] = next
		return nil
	})
}

type invitationStore struct{ s scope }

func (i *invitationStore) Create(ctx context.Context, inv *models.StaffInvitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationStatusPending
	}
	return i.s.do(func(d *dataset) error {
		if _, ok := d.invitations[inv.ID]; ok {
			return store.ErrDuplicate
		}
		for _, other := range d.invitations {
			if other.TokenHash == inv.TokenHash {
				return store.ErrDuplicate
			}
		}
		d.invitations[inv.ID] = *inv
		return nil
	})
}

func (i *invitationStore) Get(ctx context.Context, id string) (*models.StaffInvitation, error) {
	var out models.StaffInvitation
	err := i.s.do(func(d *dataset) error {
		inv, ok := d.invitations[id]
		if !ok {
			return store.ErrNotFound
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (i *invitationStore) GetByTokenHash(ctx context.Context, hash string) (*models.StaffInvitation, error) {
	var out *models.StaffInvitation
	err := i.s.do(func(d *dataset) error {
		for _, inv := range d.invitations {
			if inv.TokenHash == hash {
				inv := inv
				out = &inv
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (i *invitationStore) UpdateStatus(ctx context.Context, inv *models.StaffInvitation, expected models.InvitationStatus, validAt *time.Time) error {
	return i.s.do(func(d *dataset) error {
		cur, ok := d.invitations[inv.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Status != expected {
			return store.ErrStaleState
		}
		if validAt != nil && !cur.ExpiresAt.After(*validAt) {
			return store.ErrStaleState
		}
		cur.Status = inv.Status
		cur.RespondedAt = inv.RespondedAt
		d.invitations[inv.ID] = cur
		return nil
	})
}

func (i *invitationStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.StaffInvitation, error) {
	var out []*models.StaffInvitation
	err := i.s.do(func(d *dataset) error {
		for _, inv := range d.invitations {
			if inv.Status == models.InvitationStatusPending && !inv.ExpiresAt.After(now) {
				inv := inv
				out = append(out, &inv)
			}
		}
		return nil
	})
	sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(out[b].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
