package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/pkg/logger"
)

// Recovery returns a middleware that recovers from panics and logs the error.
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID := middleware.GetReqID(r.Context())
				log.Error("panic recovered",
					"error", rec,
					"error_code", apierrors.CodeInternalError,
					"stack_trace", string(debug.Stack()),
					"request_id", requestID,
					"actor_id", logger.ActorIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				apierrors.WriteError(w, apierrors.NewInternalError("an unexpected error occurred").WithRequestID(requestID))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
