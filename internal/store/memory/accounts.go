package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

type membershipStore struct{ s scope }

func membershipKey(facilityID, userID string) string {
	return facilityID + "/" + userID
}

func (m *membershipStore) Get(ctx context.Context, facilityID, userID string) (*models.FacilityMembership, error) {
	var out models.FacilityMembership
	err := m.s.do(func(d *dataset) error {
		mem, ok := d.memberships[membershipKey(facilityID, userID)]
		if !ok {
			return store.ErrNotFound
		}
		out = mem
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *membershipStore) Upsert(ctx context.Context, mem *models.FacilityMembership) error {
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	return m.s.do(func(d *dataset) error {
		d.memberships[membershipKey(mem.FacilityID, mem.UserID)] = *mem
		return nil
	})
}

func (m *membershipStore) ListActive(ctx context.Context, facilityID string) ([]*models.FacilityMembership, error) {
	var out []*models.FacilityMembership
	err := m.s.do(func(d *dataset) error {
		for _, mem := range d.memberships {
			if mem.FacilityID == facilityID && mem.Active {
				mem := mem
				out = append(out, &mem)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].UserID < out[k].UserID })
	return out, err
}

type accountStore struct{ s scope }

func (a *accountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var out models.Account
	err := a.s.do(func(d *dataset) error {
		acct, ok := d.accounts[id]
		if !ok {
			return store.ErrNotFound
		}
		out = acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *accountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var out *models.Account
	err := a.s.do(func(d *dataset) error {
		for _, acct := range d.accounts {
			if strings.EqualFold(acct.Email, email) {
				acct := acct
				out = &acct
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (a *accountStore) ListByRole(ctx context.Context, role models.ActorRole) ([]*models.Account, error) {
	var out []*models.Account
	err := a.s.do(func(d *dataset) error {
		for _, acct := range d.accounts {
			if acct.Role == role {
				acct := acct
				out = append(out, &acct)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, err
}

func (a *accountStore) Upsert(ctx context.Context, acct *models.Account) error {
	return a.s.do(func(d *dataset) error {
		d.accounts[acct.ID] = *acct
		return nil
	})
}
