package auth

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
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the persistence contract of the auth subsystem.
type AuthRepo interface {
	// GetUserByUsername returns types.ErrNotFound when no user matches.
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	// CheckUserExists returns the names of the unique fields already taken.
	CheckUserExists(ctx context.Context, username, email string) ([]string, error)
	// CreateUser inserts user and fills its ID and timestamps. A unique
	// violation comes back as *types.ConflictError.
	CreateUser(ctx context.Context, user *types.User) error

	// --- Reset tokens ---
	SetResetToken(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error
	// GetUserByResetToken only matches tokens that expire after now.
	GetUserByResetToken(ctx context.Context, token string, now time.Time) (*types.User, error)
	// ConsumeResetToken sets the new hash and clears the token in one
	// conditional update, then invalidates the user's sessions. It returns
	// types.ErrNotFound when the token was no longer current.
	ConsumeResetToken(ctx context.Context, userID uuid.UUID, token, newHash string, now time.Time) error

	// --- Sessions ---
	CreateSession(ctx context.Context, sess *types.Session) error
	GetSessionWithUser(ctx context.Context, sessionID string) (*types.Session, *types.User, error)
	InvalidateSession(ctx context.Context, sessionID string, at time.Time) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresAuthRepo(pgpool database.Pool, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// UserColumns is the canonical column list read by ScanUser.
const UserColumns = `id, username, email, password_hash, role, is_active, last_login,
        reset_token, reset_token_expires, created_at, updated_at`

// ScanUser reads one row selected with UserColumns.
func ScanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var role string
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.LastLogin,
		&u.ResetToken, &u.ResetTokenExpires, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	return &u, nil
}

func startSpan(ctx context.Context, name, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
	}, attrs...)
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, metrics.TrackQuery(span, "AuthRepo", name)
}

func (r *PostgresAuthRepo) getUser(ctx context.Context, span trace.Span, l *slog.Logger, where string, arg any) (*types.User, error) {
	query := `SELECT ` + UserColumns + ` FROM users WHERE ` + where
	user, err := ScanUser(r.pgpool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.DebugContext(ctx, "User not found")
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	span.SetStatus(codes.Ok, "User found")
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, span := startSpan(ctx, "GetUserByUsername", "SELECT", attribute.String("db.sql.table", "users"))
	defer span.End()
	l := r.logger.With(slog.String("method", "GetUserByUsername"))

	return r.getUser(ctx, span, l, "username = $1", username)
}

func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span := startSpan(ctx, "GetUserByEmail", "SELECT", attribute.String("db.sql.table", "users"))
	defer span.End()
	l := r.logger.With(slog.String("method", "GetUserByEmail"))

	return r.getUser(ctx, span, l, "email = $1", email)
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	ctx, span := startSpan(ctx, "GetUserByID", "SELECT",
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	)
	defer span.End()
	l := r.logger.With(slog.String("method", "GetUserByID"), slog.String("userID", userID.String()))

	return r.getUser(ctx, span, l, "id = $1", userID)
}

func (r *PostgresAuthRepo) CheckUserExists(ctx context.Context, username, email string) ([]string, error) {
	ctx, span := startSpan(ctx, "CheckUserExists", "SELECT", attribute.String("db.sql.table", "users"))
	defer span.End()

	query := `
        SELECT
            EXISTS (SELECT 1 FROM users WHERE username = $1),
            EXISTS (SELECT 1 FROM users WHERE $2 <> '' AND email = $2)`

	var usernameTaken, emailTaken bool
	if err := r.pgpool.QueryRow(ctx, query, username, email).Scan(&usernameTaken, &emailTaken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error checking user existence: %w", err)
	}

	var taken []string
	if usernameTaken {
		taken = append(taken, "username")
	}
	if emailTaken {
		taken = append(taken, "email")
	}
	span.SetStatus(codes.Ok, "Checked")
	return taken, nil
}

// conflictFields maps unique constraint names to user-facing field names.
var conflictFields = map[string]string{
	"users_username_key":    "username",
	"users_email_key":       "email",
	"users_reset_token_key": "reset_token",
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, user *types.User) error {
	ctx, span := startSpan(ctx, "CreateUser", "INSERT", attribute.String("db.sql.table", "users"))
	defer span.End()
	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("username", user.Username))

	query := `
        INSERT INTO users (username, email, password_hash, role, is_active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.pgpool.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, string(user.Role), user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if constraint, ok := database.UniqueViolation(err); ok {
			field, known := conflictFields[constraint]
			if !known {
				field = constraint
			}
			l.WarnContext(ctx, "Unique violation on insert", slog.String("constraint", constraint))
			span.SetStatus(codes.Error, "Conflict")
			return &types.ConflictError{Fields: []string{field}}
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return fmt.Errorf("database error creating user: %w", err)
	}

	l.InfoContext(ctx, "User created", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return nil
}

func (r *PostgresAuthRepo) SetResetToken(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error {
	ctx, span := startSpan(ctx, "SetResetToken", "UPDATE",
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	)
	defer span.End()
	l := r.logger.With(slog.String("method", "SetResetToken"), slog.String("userID", userID.String()))

	query := `
        UPDATE users
        SET reset_token = $1, reset_token_expires = $2, updated_at = NOW()
        WHERE id = $3`

	tag, err := r.pgpool.Exec(ctx, query, token, expires, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to store reset token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error storing reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "User not found")
		return fmt.Errorf("user not found: %w", types.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "Reset token stored")
	return nil
}

func (r *PostgresAuthRepo) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*types.User, error) {
	ctx, span := startSpan(ctx, "GetUserByResetToken", "SELECT", attribute.String("db.sql.table", "users"))
	defer span.End()
	l := r.logger.With(slog.String("method", "GetUserByResetToken"))

	query := `SELECT ` + UserColumns + ` FROM users WHERE reset_token = $1 AND reset_token_expires > $2`
	user, err := ScanUser(r.pgpool.QueryRow(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Token not current")
			return nil, fmt.Errorf("reset token not current: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query reset token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching reset token: %w", err)
	}
	span.SetStatus(codes.Ok, "Token current")
	return user, nil
}

func (r *PostgresAuthRepo) ConsumeResetToken(ctx context.Context, userID uuid.UUID, token, newHash string, now time.Time) error {
	ctx, span := startSpan(ctx, "ConsumeResetToken", "UPDATE",
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	)
	defer span.End()
	l := r.logger.With(slog.String("method", "ConsumeResetToken"), slog.String("userID", userID.String()))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Begin failed")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The token and expiry are re-checked here so that two concurrent resets
	// with the same token cannot both succeed.
	tag, err := tx.Exec(ctx, `
        UPDATE users
        SET password_hash = $1, reset_token = NULL, reset_token_expires = NULL, updated_at = $2
        WHERE id = $3 AND reset_token = $4 AND reset_token_expires > $2`,
		newHash, now, userID, token)
	if err != nil {
		l.ErrorContext(ctx, "Failed to consume reset token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error consuming reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "Reset token no longer current")
		span.SetStatus(codes.Error, "Token not current")
		return fmt.Errorf("reset token not current: %w", types.ErrNotFound)
	}

	tag, err = tx.Exec(ctx, `
        UPDATE sessions SET invalidated_at = $1
        WHERE user_id = $2 AND invalidated_at IS NULL`,
		now, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to invalidate sessions", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error invalidating sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "Password reset applied", slog.Int64("sessions_invalidated", tag.RowsAffected()))
	span.SetStatus(codes.Ok, "Reset token consumed")
	return nil
}

func (r *PostgresAuthRepo) CreateSession(ctx context.Context, sess *types.Session) error {
	ctx, span := startSpan(ctx, "CreateSession", "INSERT",
		attribute.String("db.sql.table", "sessions"),
		attribute.String("db.user.id", sess.UserID.String()),
	)
	defer span.End()
	l := r.logger.With(slog.String("method", "CreateSession"), slog.String("userID", sess.UserID.String()))

	query := `
        INSERT INTO sessions (id, user_id, remember, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pgpool.Exec(ctx, query, sess.ID, sess.UserID, sess.Remember, sess.CreatedAt, sess.ExpiresAt); err != nil {
		l.ErrorContext(ctx, "Failed to insert session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return fmt.Errorf("database error creating session: %w", err)
	}

	span.SetStatus(codes.Ok, "Session created")
	return nil
}

func (r *PostgresAuthRepo) GetSessionWithUser(ctx context.Context, sessionID string) (*types.Session, *types.User, error) {
	ctx, span := startSpan(ctx, "GetSessionWithUser", "SELECT", attribute.String("db.sql.table", "sessions"))
	defer span.End()
	l := r.logger.With(slog.String("method", "GetSessionWithUser"))

	query := `
        SELECT s.id, s.user_id, s.remember, s.created_at, s.expires_at, s.invalidated_at,
               u.id, u.username, u.email, u.password_hash, u.role, u.is_active, u.last_login,
               u.reset_token, u.reset_token_expires, u.created_at, u.updated_at
        FROM sessions s
        JOIN users u ON u.id = s.user_id
        WHERE s.id = $1`

	var s types.Session
	var u types.User
	var role string
	err := r.pgpool.QueryRow(ctx, query, sessionID).Scan(
		&s.ID, &s.UserID, &s.Remember, &s.CreatedAt, &s.ExpiresAt, &s.InvalidatedAt,
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.LastLogin,
		&u.ResetToken, &u.ResetTokenExpires, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Session not found")
			return nil, nil, fmt.Errorf("session not found: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, nil, fmt.Errorf("database error fetching session: %w", err)
	}
	u.Role = types.Role(role)

	span.SetStatus(codes.Ok, "Session found")
	return &s, &u, nil
}

func (r *PostgresAuthRepo) InvalidateSession(ctx context.Context, sessionID string, at time.Time) error {
	ctx, span := startSpan(ctx, "InvalidateSession", "UPDATE", attribute.String("db.sql.table", "sessions"))
	defer span.End()
	l := r.logger.With(slog.String("method", "InvalidateSession"))

	query := `UPDATE sessions SET invalidated_at = $1 WHERE id = $2 AND invalidated_at IS NULL`
	tag, err := r.pgpool.Exec(ctx, query, at, sessionID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to invalidate session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error invalidating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Session not found")
		return fmt.Errorf("session not found or already invalidated: %w", types.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "Session invalidated")
	return nil
}

func (r *PostgresAuthRepo) UpdateLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	ctx, span := startSpan(ctx, "UpdateLastLogin", "UPDATE",
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	)
	defer span.End()
	l := r.logger.With(slog.String("method", "UpdateLastLogin"), slog.String("userID", userID.String()))

	tag, err := r.pgpool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update user last login timestamp", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error updating last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "User not found")
		return fmt.Errorf("user not found: %w", types.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "Last login updated")
	return nil
}
