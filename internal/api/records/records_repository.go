package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-ohms-auth/app/db"
	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ IntegrityRepo = (*PostgresIntegrityRepo)(nil)

// IntegrityRepo deletes entities together with their dependent rows, each in
// a single transaction.
type IntegrityRepo interface {
	// DeleteUser detaches the user's attribution from exposures and health
	// records, then removes the user. Sessions go with it.
	DeleteUser(ctx context.Context, userID uuid.UUID) (*types.DeletionReport, error)
	// DeleteEmployee removes the employee's exposures and health records.
	DeleteEmployee(ctx context.Context, employeeID uuid.UUID) (*types.DeletionReport, error)
	// DeleteHazard removes the hazard's exposures.
	DeleteHazard(ctx context.Context, hazardID uuid.UUID) (*types.DeletionReport, error)
}

type PostgresIntegrityRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresIntegrityRepo(pgpool database.Pool, logger *slog.Logger) *PostgresIntegrityRepo {
	return &PostgresIntegrityRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// step is one statement of a deletion; count receives its affected rows.
type step struct {
	query string
	count *int64
}

// deleteWith runs steps and then the final DELETE of the entity in one
// transaction. A missing entity rolls everything back.
func (r *PostgresIntegrityRepo) deleteWith(ctx context.Context, span trace.Span, l *slog.Logger, entity string, id uuid.UUID, steps []step, final string) error {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Begin failed")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockRow(ctx, tx, entity, id); err != nil {
		span.SetStatus(codes.Error, "Lock failed")
		return err
	}

	for _, s := range steps {
		tag, err := tx.Exec(ctx, s.query, id)
		if err != nil {
			l.ErrorContext(ctx, "Dependent row update failed", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB statement failed")
			return fmt.Errorf("updating rows dependent on %s: %w", entity, err)
		}
		*s.count = tag.RowsAffected()
	}

	tag, err := tx.Exec(ctx, final, id)
	if err != nil {
		l.ErrorContext(ctx, "Delete failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("deleting %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Not found")
		return fmt.Errorf("%s not found: %w", entity, types.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockRow takes a row lock on the entity so that concurrent inserts of
// dependent rows wait for the deletion. Returns ErrNotFound if it is gone.
func lockRow(ctx context.Context, tx pgx.Tx, entity string, id uuid.UUID) error {
	table, ok := entityTables[entity]
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s not found: %w", entity, types.ErrNotFound)
		}
		return fmt.Errorf("locking %s: %w", entity, err)
	}
	return nil
}

var entityTables = map[string]string{
	"user":     "users",
	"employee": "employees",
	"hazard":   "hazards",
}

func startSpan(ctx context.Context, name, table string, id uuid.UUID) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("IntegrityRepo").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", table),
		attribute.String("entity.id", id.String()),
	))
	return ctx, metrics.TrackQuery(span, "IntegrityRepo", name)
}

func (r *PostgresIntegrityRepo) DeleteUser(ctx context.Context, userID uuid.UUID) (*types.DeletionReport, error) {
	ctx, span := startSpan(ctx, "DeleteUser", "users", userID)
	defer span.End()
	l := r.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", userID.String()))

	report := &types.DeletionReport{Entity: "user", ID: userID}
	err := r.deleteWith(ctx, span, l, "user", userID, []step{
		{`UPDATE exposures SET recorded_by = NULL WHERE recorded_by = $1`, &report.ExposuresDetached},
		{`UPDATE health_records SET recorded_by = NULL WHERE recorded_by = $1`, &report.HealthRecordsDetached},
	}, `DELETE FROM users WHERE id = $1`)
	if err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "User deleted",
		slog.Int64("exposures_detached", report.ExposuresDetached),
		slog.Int64("health_records_detached", report.HealthRecordsDetached),
	)
	span.SetStatus(codes.Ok, "User deleted")
	return report, nil
}

func (r *PostgresIntegrityRepo) DeleteEmployee(ctx context.Context, employeeID uuid.UUID) (*types.DeletionReport, error) {
	ctx, span := startSpan(ctx, "DeleteEmployee", "employees", employeeID)
	defer span.End()
	l := r.logger.With(slog.String("method", "DeleteEmployee"), slog.String("employeeID", employeeID.String()))

	report := &types.DeletionReport{Entity: "employee", ID: employeeID}
	err := r.deleteWith(ctx, span, l, "employee", employeeID, []step{
		{`DELETE FROM exposures WHERE employee_id = $1`, &report.ExposuresDeleted},
		{`DELETE FROM health_records WHERE employee_id = $1`, &report.HealthRecordsDeleted},
	}, `DELETE FROM employees WHERE id = $1`)
	if err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "Employee deleted",
		slog.Int64("exposures_deleted", report.ExposuresDeleted),
		slog.Int64("health_records_deleted", report.HealthRecordsDeleted),
	)
	span.SetStatus(codes.Ok, "Employee deleted")
	return report, nil
}

func (r *PostgresIntegrityRepo) DeleteHazard(ctx context.Context, hazardID uuid.UUID) (*types.DeletionReport, error) {
	ctx, span := startSpan(ctx, "DeleteHazard", "hazards", hazardID)
	defer span.End()
	l := r.logger.With(slog.String("method", "DeleteHazard"), slog.String("hazardID", hazardID.String()))

	report := &types.DeletionReport{Entity: "hazard", ID: hazardID}
	err := r.deleteWith(ctx, span, l, "hazard", hazardID, []step{
		{`DELETE FROM exposures WHERE hazard_id = $1`, &report.ExposuresDeleted},
	}, `DELETE FROM hazards WHERE id = $1`)
	if err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "Hazard deleted", slog.Int64("exposures_deleted", report.ExposuresDeleted))
	span.SetStatus(codes.Ok, "Hazard deleted")
	return report, nil
}
