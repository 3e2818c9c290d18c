package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var userColumnNames = []string{
	"id", "username", "email", "password_hash", "role", "is_active", "last_login",
	"reset_token", "reset_token_expires", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresAuthRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return mock, NewPostgresAuthRepo(mock, logger)
}

func userRow(id uuid.UUID, username string, email *string, role string, active bool) []any {
	now := time.Now()
	return []any{
		id, username, email, "$2a$04$hash", role, active, (*time.Time)(nil),
		(*string)(nil), (*time.Time)(nil), now, now,
	}
}

func strPtr(s string) *string { return &s }

func TestPostgresAuthRepo_GetUserByUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		id := uuid.New()
		mock.ExpectQuery("FROM users WHERE username = \\$1").
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(userColumnNames).AddRow(userRow(id, "alice", strPtr("alice@example.com"), "admin", true)...))

		user, err := repo.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, types.RoleAdmin, user.Role)
		assert.Equal(t, "alice@example.com", user.EmailAddress())
		assert.True(t, user.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery("FROM users WHERE username = \\$1").
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows(userColumnNames))

		_, err := repo.GetUserByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery("FROM users WHERE username = \\$1").
			WithArgs("alice").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetUserByUsername(ctx, "alice")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrNotFound)
	})
}

func TestPostgresAuthRepo_CheckUserExists(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT\\s+EXISTS").
		WithArgs("alice", "alice@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"username_taken", "email_taken"}).AddRow(true, true))

	taken, err := repo.CheckUserExists(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"username", "email"}, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuthRepo_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		id := uuid.New()
		now := time.Now()
		user := &types.User{Username: "alice", Email: strPtr("alice@example.com"), PasswordHash: "hash", Role: types.RoleUser, IsActive: true}

		mock.ExpectQuery("INSERT INTO users").
			WithArgs("alice", user.Email, "hash", "user", true).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

		require.NoError(t, repo.CreateUser(ctx, user))
		assert.Equal(t, id, user.ID)
		assert.Equal(t, now, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UniqueViolationMapsToConflict", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		user := &types.User{Username: "alice", PasswordHash: "hash", Role: types.RoleUser, IsActive: true}

		mock.ExpectQuery("INSERT INTO users").
			WithArgs("alice", user.Email, "hash", "user", true).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

		err := repo.CreateUser(ctx, user)
		var ce *types.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"username"}, ce.Fields)
		assert.ErrorIs(t, err, types.ErrConflict)
	})
}

func TestPostgresAuthRepo_ResetTokens(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	t.Run("SetResetToken", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		expires := now.Add(30 * time.Minute)
		mock.ExpectExec("UPDATE users\\s+SET reset_token = \\$1, reset_token_expires = \\$2").
			WithArgs("tok", expires, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SetResetToken(ctx, id, "tok", expires))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetUserByResetTokenExpired", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery("WHERE reset_token = \\$1 AND reset_token_expires > \\$2").
			WithArgs("tok", now).
			WillReturnRows(pgxmock.NewRows(userColumnNames))

		_, err := repo.GetUserByResetToken(ctx, "tok", now)
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConsumeClearsTokenAndSessions", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET password_hash = \\$1, reset_token = NULL, reset_token_expires = NULL").
			WithArgs("newhash", now, id, "tok").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE sessions SET invalidated_at").
			WithArgs(now, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mock.ExpectCommit()

		require.NoError(t, repo.ConsumeResetToken(ctx, id, "tok", "newhash", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConsumeLostRace", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET password_hash = \\$1, reset_token = NULL").
			WithArgs("newhash", now, id, "tok").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := repo.ConsumeResetToken(ctx, id, "tok", "newhash", now)
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAuthRepo_Sessions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	t.Run("CreateSession", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		sess := &types.Session{ID: "sid", UserID: userID, Remember: true, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		mock.ExpectExec("INSERT INTO sessions").
			WithArgs("sid", userID, true, now, sess.ExpiresAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.CreateSession(ctx, sess))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetSessionWithUser", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		cols := append([]string{"s_id", "s_user_id", "remember", "s_created_at", "expires_at", "invalidated_at"}, userColumnNames...)
		row := append([]any{"sid", userID, false, now, now.Add(time.Hour), (*time.Time)(nil)},
			userRow(userID, "alice", nil, "user", true)...)
		mock.ExpectQuery("FROM sessions s\\s+JOIN users u").
			WithArgs("sid").
			WillReturnRows(pgxmock.NewRows(cols).AddRow(row...))

		sess, user, err := repo.GetSessionWithUser(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, "sid", sess.ID)
		assert.True(t, sess.Valid(now))
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, types.RoleUser, user.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidateUnknownSession", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectExec("UPDATE sessions SET invalidated_at").
			WithArgs(now, "missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.InvalidateSession(ctx, "missing", now)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("UpdateLastLogin", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectExec("UPDATE users SET last_login").
			WithArgs(now, userID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateLastLogin(ctx, userID, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
