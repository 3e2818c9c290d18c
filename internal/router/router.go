package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appMiddleware "github.com/FACorreiaa/go-ohms-auth/app/middleware"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/admin"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/auth"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/records"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler    auth.Handler
	AdminHandler   admin.Handler
	RecordsHandler *records.HandlerImpl
	// Authenticate resolves the session cookie into a principal.
	Authenticate   func(http.Handler) http.Handler
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	Logger         *slog.Logger
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Authenticate)

		// Public auth routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RateLimit(cfg.RateLimit, cfg.RateWindow, cfg.Logger))
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/request_reset", cfg.AuthHandler.RequestReset)
			r.Get("/auth/reset_password/{token}", cfg.AuthHandler.ShowResetPassword)
			r.Post("/auth/reset_password/{token}", cfg.AuthHandler.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuthenticated(cfg.Logger))
			r.Get("/auth/logout", cfg.AuthHandler.Logout)
			r.Get("/auth/me", cfg.AuthHandler.Me)
			r.Post("/employees/{id}/delete", cfg.RecordsHandler.DeleteEmployee)
			r.Post("/hazards/{id}/delete", cfg.RecordsHandler.DeleteHazard)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(types.RoleAdmin, cfg.Logger))
				r.Get("/users", cfg.AdminHandler.ListUsers)
				r.Post("/users/{id}/edit", cfg.AdminHandler.EditUser)
				r.Post("/users/{id}/delete", cfg.AdminHandler.DeleteUser)
			})
		})
	})

	return r
}
