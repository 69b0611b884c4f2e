package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/redis/go-redis/v9"
)

// rateLimitScript is a fixed-window counter: the first hit in a window sets
// its expiry.
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RateLimiter limits requests per client using Redis. A nil limiter, or one
// without a client, allows everything. Redis errors also allow the request.
type RateLimiter struct {
	client *redis.Client
	script *redis.Script
	name   string
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRateLimiter creates a limiter allowing limit requests per window for
// each client. name namespaces the Redis keys.
func NewRateLimiter(client *redis.Client, name string, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		name:   name,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow reports whether key may make another request in the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil || key == "" || l.limit <= 0 || l.window <= 0 {
		return true
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{"locum:ratelimit:" + l.name + ":" + key}, ttl, l.limit).Int64()
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
		return true
	}
	return allowed == 1
}

// Middleware applies the limit, keyed by actor when authenticated and by
// client address otherwise.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if actor, ok := GetActor(r.Context()); ok {
			key = "actor:" + actor.ID
		}
		if !l.Allow(r.Context(), key) {
			w.Header().Set("Retry-After", retryAfter(l.window))
			apierrors.WriteErrorWithRequestID(w,
				apierrors.New(apierrors.CodeRateLimited, "too many requests"),
				middleware.GetReqID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfter(window time.Duration) string {
	secs := int(window.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
