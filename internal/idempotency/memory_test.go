package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	resp, err := s.Begin(ctx, "k")
	if err != nil || resp != nil {
		t.Fatalf("first Begin should claim: %v %v", resp, err)
	}
	if _, err := s.Begin(ctx, "k"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	want := &Response{Status: 201, Body: []byte(`{"id":"x"}`)}
	if err := s.Complete(ctx, "k", want); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := s.Begin(ctx, "k")
	if err != nil || got == nil || got.Status != 201 || string(got.Body) != `{"id":"x"}` {
		t.Fatalf("expected cached response, got %v %v", got, err)
	}
}

func TestMemoryStoreReleaseAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Begin(ctx, "k")
	if err := s.Release(ctx, "k"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if resp, err := s.Begin(ctx, "k"); err != nil || resp != nil {
		t.Fatalf("released key should be claimable: %v %v", resp, err)
	}

	s.Complete(ctx, "k", &Response{Status: 200})
	now = now.Add(2 * time.Minute)
	if resp, err := s.Begin(ctx, "k"); err != nil || resp != nil {
		t.Fatalf("expired response should not replay: %v %v", resp, err)
	}
}
