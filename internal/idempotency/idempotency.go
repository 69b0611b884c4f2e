// Package idempotency caches the first response to a keyed write request so
// that client retries replay it instead of repeating the write.
package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Defaults for cached responses.
const (
	DefaultTTL     = 24 * time.Hour
	DefaultLockTTL = 30 * time.Second
)

// ErrInFlight is returned by Begin when the same key is still being handled.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Response is a cached HTTP response.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
	// RequestHash is the digest of the request body that produced the
	// response. A retry must carry the same body to be replayed.
	RequestHash string `json:"request_hash,omitempty"`
}

// Store holds idempotency keys.
type Store interface {
	// Begin claims key. It returns (nil, nil) when the caller now owns the
	// key, the cached response when one is stored, or ErrInFlight.
	Begin(ctx context.Context, key string) (*Response, error)
	// Complete stores resp for key.
	Complete(ctx context.Context, key string, resp *Response) error
	// Release drops a claim without storing a response, so the request may
	// be retried.
	Release(ctx context.Context, key string) error
}
