package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/internal/idempotency"
)

// maxIdempotentBody bounds the request body read for the digest. Larger
// bodies are left to the handler's own limit.
const maxIdempotentBody = 1 << 20

// Idempotency headers.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// Idempotency replays the first response to a write request that carries an
// Idempotency-Key header. Keys are scoped to the actor, method and path.
// Responses with a 5xx status are not kept, so the client may retry them.
// It must run after authentication.
func Idempotency(st idempotency.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyKeyHeader)
			if st == nil || header == "" || !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			actor, _ := GetActor(r.Context())
			key := idempotencyKey(actor.ID, r.Method, r.URL.Path, header)
			digest, err := bodyDigest(r)
			if err != nil {
				apierrors.WriteError(w, apierrors.NewValidationError("unreadable request body"))
				return
			}

			cached, err := st.Begin(r.Context(), key)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				apierrors.WriteError(w, apierrors.NewConflictError(err.Error()))
				return
			case err != nil:
				// Store down: serve uncached.
				logger.WarnContext(r.Context(), "idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			case cached != nil && cached.RequestHash != digest:
				apierrors.WriteError(w, apierrors.NewConflictError("idempotency key reused with a different request body"))
				return
			case cached != nil:
				replay(w, cached)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			completed := false
			defer func() {
				if !completed {
					st.Release(context.WithoutCancel(r.Context()), key)
				}
			}()

			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				return
			}
			resp := &idempotency.Response{
				Status:      rec.status,
				Header:      rec.Header().Clone(),
				Body:        rec.body.Bytes(),
				RequestHash: digest,
			}
			if err := st.Complete(context.WithoutCancel(r.Context()), key, resp); err != nil {
				logger.WarnContext(r.Context(), "storing idempotent response", "error", err)
				return
			}
			completed = true
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func idempotencyKey(actorID, method, path, header string) string {
	h := sha256.New()
	for _, part := range []string{actorID, method, path, header} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// bodyDigest hashes the request body and puts it back for the handler.
func bodyDigest(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return hex.EncodeToString(sha256.New().Sum(nil)), nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
	if err != nil {
		return "", err
	}
	r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func replay(w http.ResponseWriter, resp *idempotency.Response) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// recorder tees the response so it can be cached.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
