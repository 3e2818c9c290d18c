package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-ohms-auth/internal/api/records"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ AdminService = (*AdminServiceImpl)(nil)

// AdminService carries out user management on behalf of an administrator.
// actorID is always the user behind the current session.
type AdminService interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	EditUser(ctx context.Context, actorID, targetID uuid.UUID, params types.UpdateUserParams) (*types.User, error)
	DeleteUser(ctx context.Context, actorID, targetID uuid.UUID) (*types.DeletionReport, error)
}

type AdminServiceImpl struct {
	logger  *slog.Logger
	repo    AdminRepo
	records records.RecordsService
}

func NewAdminService(repo AdminRepo, recordsService records.RecordsService, logger *slog.Logger) *AdminServiceImpl {
	return &AdminServiceImpl{
		logger:  logger,
		repo:    repo,
		records: recordsService,
	}
}

func (s *AdminServiceImpl) ListUsers(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// EditUser applies role and active-status changes. An admin editing itself
// may not deactivate or demote itself; the target row is left untouched.
func (s *AdminServiceImpl) EditUser(ctx context.Context, actorID, targetID uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	l := s.logger.With(slog.String("method", "EditUser"), slog.String("actorID", actorID.String()), slog.String("targetID", targetID.String()))

	if !params.Role.Valid() {
		return nil, &types.ValidationError{Field: "role", Rule: "oneof", Message: "Must be one of: user admin."}
	}

	target, err := s.repo.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if actorID == targetID {
		if !params.IsActive {
			l.WarnContext(ctx, "Rejected self deactivation")
			return nil, types.ErrSelfDeactivation
		}
		if target.Role == types.RoleAdmin && params.Role != types.RoleAdmin {
			l.WarnContext(ctx, "Rejected self demotion")
			return nil, types.ErrSelfDemotion
		}
	}

	updated, err := s.repo.UpdateUser(ctx, targetID, params)
	if err != nil {
		return nil, err
	}
	l.InfoContext(ctx, "User edited by admin", slog.String("role", string(updated.Role)), slog.Bool("is_active", updated.IsActive))
	return updated, nil
}

// DeleteUser removes the target through the integrity policy. Self deletion
// is rejected before anything is touched.
func (s *AdminServiceImpl) DeleteUser(ctx context.Context, actorID, targetID uuid.UUID) (*types.DeletionReport, error) {
	l := s.logger.With(slog.String("method", "DeleteUser"), slog.String("actorID", actorID.String()), slog.String("targetID", targetID.String()))

	if actorID == targetID {
		l.WarnContext(ctx, "Rejected self deletion")
		return nil, types.ErrSelfDeletion
	}

	report, err := s.records.DeleteUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	l.InfoContext(ctx, "User deleted by admin",
		slog.Int64("exposures_detached", report.ExposuresDetached),
		slog.Int64("health_records_detached", report.HealthRecordsDetached),
	)
	return report, nil
}
