package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/models"
)

// InvitationHandler handles facility staff invitations.
type InvitationHandler struct {
	engine *lifecycle.Engine
	logger *slog.Logger
}

// NewInvitationHandler creates a new invitation handler.
func NewInvitationHandler(engine *lifecycle.Engine, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{engine: engine, logger: logger}
}

// IssueInvitationRequest is the body of POST /v1/facilities/{facilityID}/invitations.
type IssueInvitationRequest struct {
	Email string              `json:"email"`
	Role  models.FacilityRole `json:"role"`
}

// RespondRequest is the body of POST /v1/invitations/respond.
type RespondRequest struct {
	Token    string `json:"token"`
	Decision string `json:"decision"`
}

// Issue handles POST /v1/facilities/{facilityID}/invitations. The raw token
// only travels in the invitation email, so the response carries the record
// alone.
func (h *InvitationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req IssueInvitationRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.engine.IssueInvitation(r.Context(), a, chi.URLParam(r, "facilityID"), req.Email, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, issued.Invitation)
}

// Respond handles POST /v1/invitations/respond.
func (h *InvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req RespondRequest
	if !decode(w, r, &req) {
		return
	}
	decision, err := lifecycle.ParseInvitationDecision(req.Decision)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	inv, err := h.engine.RespondToInvitation(r.Context(), a, req.Token, decision)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}
