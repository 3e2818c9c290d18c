package appMiddleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/FACorreiaa/go-ohms-auth/internal/api"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

// RateLimit limits requests per client IP within window. Exceeding the limit
// answers 429 in the same JSON envelope as every other error.
func RateLimit(limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.WarnContext(r.Context(), "Rate limit exceeded",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			api.WriteError(w, r, types.ErrTooManyAttempts)
		}),
	)
}
