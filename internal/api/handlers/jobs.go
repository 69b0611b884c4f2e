package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/models"
)

// JobHandler handles posted shifts.
type JobHandler struct {
	engine *lifecycle.Engine
	logger *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(engine *lifecycle.Engine, logger *slog.Logger) *JobHandler {
	return &JobHandler{engine: engine, logger: logger}
}

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	FacilityID      string         `json:"facility_id"`
	Title           string         `json:"title"`
	Specialty       string         `json:"specialty,omitempty"`
	Urgency         models.Urgency `json:"urgency,omitempty"`
	StartsAt        time.Time      `json:"starts_at"`
	EndsAt          time.Time      `json:"ends_at"`
	HourlyRateCents int64          `json:"hourly_rate_cents"`
	Currency        string         `json:"currency"`
}

// EventRequest names a lifecycle event.
type EventRequest struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// Create handles POST /v1/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req CreateJobRequest
	if !decode(w, r, &req) {
		return
	}

	job, err := h.engine.CreateJob(r.Context(), a, &models.Job{
		FacilityID:      req.FacilityID,
		Title:           req.Title,
		Specialty:       req.Specialty,
		Urgency:         req.Urgency,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		HourlyRateCents: req.HourlyRateCents,
		Currency:        req.Currency,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// Transition handles POST /v1/jobs/{jobID}/events.
func (h *JobHandler) Transition(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := lifecycle.ParseJobEvent(req.Event)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	job, err := h.engine.TransitionJob(r.Context(), a, chi.URLParam(r, "jobID"), ev)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Delete handles DELETE /v1/jobs/{jobID}.
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteJob(r.Context(), a, chi.URLParam(r, "jobID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
