// Package memory provides an in-process implementation of the store interfaces.
//
// A transaction holds the store lock for its whole duration and works on a
// private copy of the dataset, which replaces the shared dataset only when the
// transaction function returns nil.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/store"
)

type dataset struct {
	jobs          map[string]models.Job
	applications  map[string]models.JobApplication
	verifications map[string]models.Verification
	invitations   map[string]models.StaffInvitation
	notifications map[string]models.Notification
	memberships   map[string]models.FacilityMembership
	accounts      map[string]models.Account
}

func newDataset() *dataset {
	return &dataset{
		jobs:          make(map[string]models.Job),
		applications:  make(map[string]models.JobApplication),
		verifications: make(map[string]models.Verification),
		invitations:   make(map[string]models.StaffInvitation),
		notifications: make(map[string]models.Notification),
		memberships:   make(map[string]models.FacilityMembership),
		accounts:      make(map[string]models.Account),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		jobs:          cloneMap(d.jobs, nil),
		applications:  cloneMap(d.applications, nil),
		verifications: cloneMap(d.verifications, copyVerification),
		invitations:   cloneMap(d.invitations, nil),
		notifications: cloneMap(d.notifications, copyNotification),
		memberships:   cloneMap(d.memberships, nil),
		accounts:      cloneMap(d.accounts, nil),
	}
	return c
}

func cloneMap[T any](m map[string]T, deep func(T) T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		if deep != nil {
			v = deep(v)
		}
		out[k] = v
	}
	return out
}

func copyVerification(v models.Verification) models.Verification {
	v.Credentials = slices.Clone(v.Credentials)
	v.DocumentURLs = slices.Clone(v.DocumentURLs)
	return v
}

func copyNotification(n models.Notification) models.Notification {
	n.Metadata = slices.Clone(n.Metadata)
	return n
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *dataset
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: newDataset()}
}

// scope gives sub-stores access to the dataset they operate on.
// Outside a transaction every call takes the store lock; inside one the
// lock is already held and the transaction's private copy is used.
type scope struct {
	root *Store
	tx   *dataset
}

func (s scope) do(fn func(d *dataset) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.data)
}

func (s *Store) scope() scope { return scope{root: s} }

// Jobs returns the JobStore.
func (s *Store) Jobs() store.JobStore { return &jobStore{s.scope()} }

// Applications returns the ApplicationStore.
func (s *Store) Applications() store.ApplicationStore { return &applicationStore{s.scope()} }

// Verifications returns the VerificationStore.
func (s *Store) Verifications() store.VerificationStore { return &verificationStore{s.scope()} }

// Invitations returns the InvitationStore.
func (s *Store) Invitations() store.InvitationStore { return &invitationStore{s.scope()} }

// Notifications returns the NotificationStore.
func (s *Store) Notifications() store.NotificationStore { return &notificationStore{s.scope()} }

// Memberships returns the MembershipStore.
func (s *Store) Memberships() store.MembershipStore { return &membershipStore{s.scope()} }

// Accounts returns the AccountStore.
func (s *Store) Accounts() store.AccountStore { return &accountStore{s.scope()} }

// WithTx executes fn against a private copy of the dataset and publishes the
// copy only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&txStore{scope: scope{root: s, tx: work}}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// txStore is the transaction-scoped view handed to WithTx callbacks.
type txStore struct {
	scope scope
}

func (t *txStore) Jobs() store.JobStore                   { return &jobStore{t.scope} }
func (t *txStore) Applications() store.ApplicationStore   { return &applicationStore{t.scope} }
func (t *txStore) Verifications() store.VerificationStore { return &verificationStore{t.scope} }
func (t *txStore) Invitations() store.InvitationStore     { return &invitationStore{t.scope} }
func (t *txStore) Notifications() store.NotificationStore { return &notificationStore{t.scope} }
func (t *txStore) Memberships() store.MembershipStore     { return &membershipStore{t.scope} }
func (t *txStore) Accounts() store.AccountStore           { return &accountStore{t.scope} }

func (t *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error { return ctx.Err() }

func (t *txStore) Close() error { return nil }
