package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/go-ohms-auth/config"
	"github.com/FACorreiaa/go-ohms-auth/internal/api"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

// Define typed context keys
type contextKey string

const principalKey contextKey = "principal"

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/auth/login"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *types.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*types.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*types.Principal)
	return p, ok && p != nil
}

// Helper functions to get claims from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.UserID.String(), true
}

// Authenticate resolves the session cookie, if present, into a principal on
// the request context. It never rejects a request; RequireAuthenticated and
// RequireRole do that.
func Authenticate(svc AuthService, cfg config.AuthConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			cookie, err := r.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := svc.Authenticate(ctx, cookie.Value)
			if err != nil {
				if errors.Is(err, types.ErrUnauthenticated) {
					l.DebugContext(ctx, "Session cookie rejected", slog.Any("error", err))
					ClearSessionCookie(w, cfg)
				} else {
					l.ErrorContext(ctx, "Session lookup failed", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}

			l.DebugContext(ctx, "Authentication successful", slog.String("userID", p.UserID.String()))
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// LoginURL builds the login address that returns the user to r afterwards.
func LoginURL(r *http.Request) string {
	return LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// RequireAuthenticated rejects anonymous requests. API clients get a 401 with
// the login URL; browsers are redirected to it.
func RequireAuthenticated(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			loginURL := LoginURL(r)
			logger.InfoContext(r.Context(), "Anonymous request to protected route", slog.String("path", r.URL.Path))
			if wantsHTML(r) {
				http.Redirect(w, r, loginURL, http.StatusSeeOther)
				return
			}
			api.WriteJSONResponse(w, r, http.StatusUnauthorized, map[string]interface{}{
				"success":    false,
				"error":      MsgLoginRequired,
				"login_url":  loginURL,
				"request_id": middleware.GetReqID(r.Context()),
			})
		})
	}
}

// RequireRole only lets principals holding role through. It runs after
// RequireAuthenticated; the role comes from the live user record.
func RequireRole(role types.Role, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				api.WriteError(w, r, types.ErrUnauthenticated)
				return
			}
			if p.Role != role {
				logger.WarnContext(r.Context(), "Role check failed",
					slog.String("required_role", string(role)),
					slog.String("actual_role", string(p.Role)),
					slog.String("userID", p.UserID.String()),
				)
				api.ErrorResponse(w, r, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
