package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/locum/internal/lifecycle"
)

// ApplicationHandler handles doctors' applications to jobs.
type ApplicationHandler struct {
	engine *lifecycle.Engine
	logger *slog.Logger
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(engine *lifecycle.Engine, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{engine: engine, logger: logger}
}

// Submit handles POST /v1/jobs/{jobID}/applications.
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	app, err := h.engine.SubmitApplication(r.Context(), a, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, app)
}

// Transition handles POST /v1/applications/{applicationID}/events.
func (h *ApplicationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := lifecycle.ParseApplicationEvent(req.Event, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	app, err := h.engine.TransitionApplication(r.Context(), a, chi.URLParam(r, "applicationID"), ev)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}
