package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-ohms-auth/app/db"
	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/auth"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ AdminRepo = (*PostgresAdminRepo)(nil)

type AdminRepo interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, params types.UpdateUserParams) (*types.User, error)
}

type PostgresAdminRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresAdminRepo(pgpool database.Pool, logger *slog.Logger) *PostgresAdminRepo {
	return &PostgresAdminRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func startSpan(ctx context.Context, name, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "users"),
	}, attrs...)
	ctx, span := otel.Tracer("AdminRepo").Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, metrics.TrackQuery(span, "AdminRepo", name)
}

func (r *PostgresAdminRepo) ListUsers(ctx context.Context) ([]types.User, error) {
	ctx, span := startSpan(ctx, "ListUsers", "SELECT")
	defer span.End()
	l := r.logger.With(slog.String("method", "ListUsers"))

	rows, err := r.pgpool.Query(ctx, `SELECT `+auth.UserColumns+` FROM users ORDER BY username`)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list users", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			l.ErrorContext(ctx, "Failed to scan user row", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Scan failed")
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Rows iteration failed")
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	span.SetAttributes(attribute.Int("users.count", len(users)))
	span.SetStatus(codes.Ok, "Users listed")
	return users, nil
}

func (r *PostgresAdminRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	ctx, span := startSpan(ctx, "GetUserByID", "SELECT", attribute.String("user.id", userID.String()))
	defer span.End()

	user, err := auth.ScanUser(r.pgpool.QueryRow(ctx, `SELECT `+auth.UserColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query user", slog.String("method", "GetUserByID"), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	span.SetStatus(codes.Ok, "User found")
	return user, nil
}

// UpdateUser sets role and is_active. Deactivating a user also invalidates
// their open sessions in the same transaction.
func (r *PostgresAdminRepo) UpdateUser(ctx context.Context, userID uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	ctx, span := startSpan(ctx, "UpdateUser", "UPDATE", attribute.String("user.id", userID.String()))
	defer span.End()
	l := r.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", userID.String()))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Begin failed")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE users SET role = $2, is_active = $3, updated_at = now()
              WHERE id = $1
              RETURNING ` + auth.UserColumns
	user, err := auth.ScanUser(tx.QueryRow(ctx, query, userID, string(params.Role), params.IsActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return nil, fmt.Errorf("database error updating user: %w", err)
	}

	if !params.IsActive {
		tag, err := tx.Exec(ctx,
			`UPDATE sessions SET invalidated_at = $2 WHERE user_id = $1 AND invalidated_at IS NULL`,
			userID, time.Now())
		if err != nil {
			l.ErrorContext(ctx, "Failed to invalidate sessions", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB UPDATE sessions failed")
			return nil, fmt.Errorf("database error invalidating sessions: %w", err)
		}
		l.InfoContext(ctx, "Sessions invalidated for deactivated user", slog.Int64("sessions", tag.RowsAffected()))
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "User updated", slog.String("role", string(user.Role)), slog.Bool("is_active", user.IsActive))
	span.SetStatus(codes.Ok, "User updated")
	return user, nil
}
