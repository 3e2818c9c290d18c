package admin

import (
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-ohms-auth/internal/api"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/auth"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/records"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	EditUser(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	adminService AdminService
	logger       *slog.Logger
}

func NewHandlerImpl(adminService AdminService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		adminService: adminService,
		logger:       logger,
	}
}

// ListUsers godoc
// @Summary      List users
// @Tags         Admin
// @Produce      json
// @Success      200 {array} types.User
// @Failure      403 {object} types.Response
// @Router       /admin/users [get]
func (h *HandlerImpl) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.adminService.ListUsers(r.Context())
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, users)
}

// EditUser godoc
// @Summary      Edit a user's role and status
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID"
// @Param        body body types.EditUserRequest true "New role and status"
// @Success      200 {object} types.User
// @Failure      400 {object} types.Response
// @Failure      403 {object} types.Response "Forbidden or self-protection"
// @Failure      404 {object} types.Response
// @Router       /admin/users/{id}/edit [post]
func (h *HandlerImpl) EditUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "EditUser"))

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		api.WriteError(w, r, types.ErrUnauthenticated)
		return
	}
	targetID, err := records.ParseID(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	var req types.EditUserRequest
	if err := api.DecodeAndValidate(w, r, &req); err != nil {
		l.InfoContext(ctx, "Invalid edit request", slog.Any("error", err))
		api.WriteError(w, r, err)
		return
	}

	user, err := h.adminService.EditUser(ctx, principal.UserID, targetID, types.UpdateUserParams{
		Role:     types.Role(req.Role),
		IsActive: *req.IsActive,
	})
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// DeleteUser godoc
// @Summary      Delete a user
// @Description  Exposures and health records recorded by the user are kept with their attribution cleared.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} types.DeletionReport
// @Failure      403 {object} types.Response "Forbidden or self-protection"
// @Failure      404 {object} types.Response
// @Router       /admin/users/{id}/delete [post]
func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		api.WriteError(w, r, types.ErrUnauthenticated)
		return
	}
	targetID, err := records.ParseID(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	report, err := h.adminService.DeleteUser(r.Context(), principal.UserID, targetID)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, report)
}
