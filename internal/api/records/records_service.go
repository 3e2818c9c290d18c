package records

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ RecordsService = (*RecordsServiceImpl)(nil)

// RecordsService applies the referential-integrity policy on deletion.
type RecordsService interface {
	DeleteUser(ctx context.Context, userID uuid.UUID) (*types.DeletionReport, error)
	DeleteEmployee(ctx context.Context, employeeID uuid.UUID) (*types.DeletionReport, error)
	DeleteHazard(ctx context.Context, hazardID uuid.UUID) (*types.DeletionReport, error)
}

type RecordsServiceImpl struct {
	logger *slog.Logger
	repo   IntegrityRepo
	now    func() time.Time
}

func NewRecordsService(repo IntegrityRepo, logger *slog.Logger) *RecordsServiceImpl {
	return &RecordsServiceImpl{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *RecordsServiceImpl) finish(ctx context.Context, report *types.DeletionReport, err error) (*types.DeletionReport, error) {
	if err != nil {
		return nil, err
	}
	report.DeletedAt = s.now()
	metrics.Get().DeletionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", report.Entity)))
	return report, nil
}

func (s *RecordsServiceImpl) DeleteUser(ctx context.Context, userID uuid.UUID) (*types.DeletionReport, error) {
	report, err := s.repo.DeleteUser(ctx, userID)
	return s.finish(ctx, report, err)
}

func (s *RecordsServiceImpl) DeleteEmployee(ctx context.Context, employeeID uuid.UUID) (*types.DeletionReport, error) {
	report, err := s.repo.DeleteEmployee(ctx, employeeID)
	return s.finish(ctx, report, err)
}

func (s *RecordsServiceImpl) DeleteHazard(ctx context.Context, hazardID uuid.UUID) (*types.DeletionReport, error) {
	report, err := s.repo.DeleteHazard(ctx, hazardID)
	return s.finish(ctx, report, err)
}
