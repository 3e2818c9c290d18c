package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/go-ohms-auth/config"
	"github.com/FACorreiaa/go-ohms-auth/internal/api"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	RequestReset(w http.ResponseWriter, r *http.Request)
	ShowResetPassword(w http.ResponseWriter, r *http.Request)
	ResetPassword(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	authService AuthService
	cfg         config.AuthConfig
	logger      *slog.Logger
}

func NewHandlerImpl(authService AuthService, cfg config.AuthConfig, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		cfg:         cfg,
		logger:      logger,
	}
}

// Register godoc
// @Summary      Register a new user
// @Description  Creates an active account with role "user".
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body body types.RegisterRequest true "Registration details"
// @Success      201 {object} types.Response
// @Failure      400 {object} types.Response "Validation failed"
// @Failure      409 {object} types.Response "Username or email taken"
// @Router       /auth/register [post]
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Register"))

	var req types.RegisterRequest
	if err := api.DecodeAndValidate(w, r, &req); err != nil {
		l.InfoContext(ctx, "Invalid registration request", slog.Any("error", err))
		api.WriteError(w, r, err)
		return
	}

	user, err := h.authService.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": MsgRegistered,
		"user":    user,
	})
}

// Login godoc
// @Summary      Log in
// @Description  Establishes a session cookie and answers with a 303 to the next page.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        next query string false "Relative path to return to"
// @Param        body body types.LoginRequest true "Credentials"
// @Success      303 {object} types.LoginResponse
// @Failure      401 {object} types.Response "Invalid credentials"
// @Failure      429 {object} types.Response "Too many attempts"
// @Router       /auth/login [post]
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	var req types.LoginRequest
	if err := api.DecodeAndValidate(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}

	res, err := h.authService.Login(ctx, req.Username, req.Password, req.Remember)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	SetSessionCookie(w, h.cfg, res.Token, res.Session)
	redirect := SafeRedirect(r.URL.Query().Get("next"), h.cfg.DefaultLanding)
	l.InfoContext(ctx, "Login succeeded", slog.String("userID", res.User.ID.String()), slog.String("redirect", redirect))

	w.Header().Set("Location", redirect)
	api.WriteJSONResponse(w, r, http.StatusSeeOther, types.LoginResponse{
		Success:  true,
		Message:  MsgLoggedIn,
		Redirect: redirect,
	})
}

// Logout godoc
// @Summary      Log out
// @Tags         Auth
// @Success      303
// @Router       /auth/logout [get]
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Logout"))

	if p, ok := PrincipalFromContext(ctx); ok {
		if err := h.authService.Logout(ctx, p.SessionID); err != nil {
			l.ErrorContext(ctx, "Failed to invalidate session", slog.Any("error", err))
			api.WriteError(w, r, err)
			return
		}
	}
	ClearSessionCookie(w, h.cfg)
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// Me godoc
// @Summary      Current user
// @Tags         Auth
// @Produce      json
// @Success      200 {object} types.User
// @Failure      401 {object} types.Response
// @Router       /auth/me [get]
func (h *HandlerImpl) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		api.WriteError(w, r, types.ErrUnauthenticated)
		return
	}
	user, err := h.authService.GetUser(r.Context(), p.UserID)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// RequestReset godoc
// @Summary      Request a password reset email
// @Description  Always answers with the same acknowledgment for well-formed addresses.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body body types.RequestResetRequest true "Email"
// @Success      200 {object} types.Response
// @Failure      400 {object} types.Response
// @Router       /auth/request_reset [post]
func (h *HandlerImpl) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req types.RequestResetRequest
	if err := api.DecodeAndValidate(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{Success: true, Message: MsgResetRequested})
}

// ShowResetPassword godoc
// @Summary      Check a reset token
// @Tags         Auth
// @Param        token path string true "Reset token"
// @Success      200 {object} types.Response
// @Failure      401 {object} types.Response
// @Router       /auth/reset_password/{token} [get]
func (h *HandlerImpl) ShowResetPassword(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authService.VerifyResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{Success: true, Message: MsgResetTokenOK})
}

// ResetPassword godoc
// @Summary      Set a new password with a reset token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        token path string true "Reset token"
// @Param        body body types.ResetPasswordRequest true "New password"
// @Success      200 {object} types.Response
// @Failure      400 {object} types.Response
// @Failure      401 {object} types.Response
// @Router       /auth/reset_password/{token} [post]
func (h *HandlerImpl) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req types.ResetPasswordRequest
	if err := api.DecodeAndValidate(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	if err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{Success: true, Message: MsgPasswordReset})
}
