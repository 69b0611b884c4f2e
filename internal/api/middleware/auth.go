package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/pkg/logger"
)

type contextKey string

// actorKey is the context key for the authenticated actor.
const actorKey contextKey = "actor"

// GetActor extracts the authenticated actor from the request context.
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	return logger.ContextWithActorID(ctx, actor.ID)
}

// AuthMiddleware turns a session JWT into the Actor the engine acts for.
type AuthMiddleware struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Authenticate validates the bearer token. Browsers cannot set headers on a
// websocket handshake, so upgrade requests may pass it as access_token.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			apierrors.WriteError(w, apierrors.NewUnauthenticatedError("missing authentication"))
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("JWT validation failed", "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				apierrors.WriteError(w, apierrors.NewUnauthenticatedError("token has expired"))
				return
			}
			apierrors.WriteError(w, apierrors.NewUnauthenticatedError("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claims.Actor())))
	})
}
