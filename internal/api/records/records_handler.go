package records

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-ohms-auth/internal/api"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

type HandlerImpl struct {
	recordsService RecordsService
	logger         *slog.Logger
}

func NewHandlerImpl(recordsService RecordsService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		recordsService: recordsService,
		logger:         logger,
	}
}

// ParseID reads the {id} URL parameter as a UUID.
func ParseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &types.ValidationError{Field: "id", Rule: "uuid", Message: "Invalid ID format."}
	}
	return id, nil
}

// DeleteEmployee godoc
// @Summary      Delete an employee
// @Description  Removes the employee and every exposure and health record that belongs to it.
// @Tags         Records
// @Produce      json
// @Param        id path string true "Employee ID"
// @Success      200 {object} types.DeletionReport
// @Failure      404 {object} types.Response
// @Router       /employees/{id}/delete [post]
func (h *HandlerImpl) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	report, err := h.recordsService.DeleteEmployee(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Employee delete failed", slog.String("employeeID", id.String()), slog.Any("error", err))
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, report)
}

// DeleteHazard godoc
// @Summary      Delete a hazard
// @Description  Removes the hazard and every exposure recorded against it.
// @Tags         Records
// @Produce      json
// @Param        id path string true "Hazard ID"
// @Success      200 {object} types.DeletionReport
// @Failure      404 {object} types.Response
// @Router       /hazards/{id}/delete [post]
func (h *HandlerImpl) DeleteHazard(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	report, err := h.recordsService.DeleteHazard(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Hazard delete failed", slog.String("hazardID", id.String()), slog.Any("error", err))
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, report)
}
