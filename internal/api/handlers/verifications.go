package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/secrets"
)

// VerificationHandler handles credential verification submissions and review.
type VerificationHandler struct {
	engine *lifecycle.Engine
	logger *slog.Logger
}

// NewVerificationHandler creates a new verification handler.
func NewVerificationHandler(engine *lifecycle.Engine, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{engine: engine, logger: logger}
}

// SubmitVerificationRequest is the body of POST /v1/verifications.
type SubmitVerificationRequest struct {
	SubjectKind  models.SubjectKind  `json:"subject_kind"`
	SubjectID    string              `json:"subject_id"`
	Credentials  secrets.Credentials `json:"credentials"`
	DocumentURLs []string            `json:"document_urls"`
}

// ResubmitVerificationRequest is the body of an appeal. Omitted fields keep
// their previous values.
type ResubmitVerificationRequest struct {
	Credentials  secrets.Credentials `json:"credentials,omitempty"`
	DocumentURLs []string            `json:"document_urls,omitempty"`
}

// ReviewRequest is an admin decision.
type ReviewRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// Submit handles POST /v1/verifications.
func (h *VerificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req SubmitVerificationRequest
	if !decode(w, r, &req) {
		return
	}

	v, err := h.engine.SubmitVerification(r.Context(), a, lifecycle.VerificationSubmission{
		SubjectKind:  req.SubjectKind,
		SubjectID:    req.SubjectID,
		Credentials:  req.Credentials,
		DocumentURLs: req.DocumentURLs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, v)
}

// Resubmit handles POST /v1/verifications/{id}/resubmit.
func (h *VerificationHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req ResubmitVerificationRequest
	if !decode(w, r, &req) {
		return
	}

	v, err := h.engine.ResubmitVerification(r.Context(), a, chi.URLParam(r, "id"), req.Credentials, req.DocumentURLs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// Review handles POST /v1/verifications/{id}/review.
func (h *VerificationHandler) Review(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if !decode(w, r, &req) {
		return
	}
	decision, err := lifecycle.ParseVerificationDecision(req.Decision, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	v, err := h.engine.ReviewVerification(r.Context(), a, chi.URLParam(r, "id"), decision)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// Credentials handles GET /v1/verifications/{id}/credentials.
func (h *VerificationHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	creds, err := h.engine.VerificationCredentials(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}
