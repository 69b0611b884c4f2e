// Package handlers maps HTTP requests onto lifecycle and inbox operations.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/internal/api/middleware"
	"github.com/narvanalabs/locum/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// writeError maps err to the API envelope. Internal errors are logged with
// their cause, which is never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := apierrors.FromError(err)
	requestID := chimiddleware.GetReqID(r.Context())
	if apiErr.HTTPStatusCode() >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
	} else {
		logger.DebugContext(r.Context(), "request refused", "error", err, "code", apiErr.Code)
	}
	apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		apierrors.WriteErrorWithRequestID(w,
			apierrors.NewValidationErrorWithFields(apierrors.AddFieldError("body", "invalid JSON: "+err.Error())),
			chimiddleware.GetReqID(r.Context()))
		return false
	}
	return true
}

// actor returns the authenticated actor, writing a 401 when there is none.
func actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := middleware.GetActor(r.Context())
	if !ok || a.ID == "" {
		apierrors.WriteErrorWithRequestID(w,
			apierrors.NewUnauthenticatedError("authentication required"),
			chimiddleware.GetReqID(r.Context()))
		return models.Actor{}, false
	}
	return a, true
}
