package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
	"github.com/FACorreiaa/go-ohms-auth/config"
	"github.com/FACorreiaa/go-ohms-auth/internal/mailer"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService covers registration, sessions and password recovery.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*types.User, error)
	Login(ctx context.Context, username, password string, remember bool) (*types.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	// Authenticate resolves a session cookie value to the current principal.
	Authenticate(ctx context.Context, token string) (*types.Principal, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error)

	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) (*types.User, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type AuthServiceImpl struct {
	logger    *slog.Logger
	repo      AuthRepo
	creds     *CredentialStore
	signer    *SessionSigner
	throttle  *LoginThrottle
	notifier  mailer.EmailNotifier
	cfg       config.AuthConfig
	publicURL string
	now       func() time.Time
	// resets tracks token issuance running off the request path.
	resets sync.WaitGroup
}

func NewAuthService(repo AuthRepo, creds *CredentialStore, notifier mailer.EmailNotifier, cfg config.AuthConfig, publicURL string, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:    logger,
		repo:      repo,
		creds:     creds,
		signer:    NewSessionSigner(cfg.SessionSecret, cfg.Issuer),
		throttle:  NewLoginThrottle(cfg.MaxFailedLogins, cfg.LockoutWindow),
		notifier:  notifier,
		cfg:       cfg,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*types.User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register")
	defer span.End()
	l := s.logger.With(slog.String("method", "Register"))

	username = normalizeUsername(username)
	email = strings.TrimSpace(email)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if email != "" {
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	taken, err := s.repo.CheckUserExists(ctx, username, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Existence check failed")
		return nil, fmt.Errorf("checking existing users: %w", err)
	}
	if len(taken) > 0 {
		l.InfoContext(ctx, "Registration conflict", slog.Any("fields", taken))
		span.SetStatus(codes.Error, "Conflict")
		return nil, &types.ConflictError{Fields: taken}
	}

	user := &types.User{
		Username: username,
		Role:     types.RoleUser,
		IsActive: true,
	}
	if email != "" {
		user.Email = &email
	}
	if err := s.creds.SetPassword(ctx, user, password); err != nil {
		return nil, err
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, err
	}

	metrics.Get().RegisterRequestsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Registered")
	return user, nil
}

func (s *AuthServiceImpl) recordLogin(ctx context.Context, outcome string) {
	metrics.Get().LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *AuthServiceImpl) Login(ctx context.Context, username, password string, remember bool) (*types.LoginResult, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login", trace.WithAttributes(attribute.Bool("remember", remember)))
	defer span.End()
	l := s.logger.With(slog.String("method", "Login"))

	username = normalizeUsername(username)
	if !s.throttle.Allowed(username) {
		l.WarnContext(ctx, "Login throttled")
		s.recordLogin(ctx, "throttled")
		span.SetStatus(codes.Error, "Throttled")
		return nil, ErrLoginThrottled
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Lookup failed")
			return nil, fmt.Errorf("looking up user: %w", err)
		}
		s.creds.CheckAgainstDummy(ctx, password)
		return nil, s.loginFailed(ctx, span, username)
	}

	if !s.creds.CheckPassword(ctx, user, password) || !user.IsActive {
		return nil, s.loginFailed(ctx, span, username)
	}
	s.throttle.Reset(username)

	sid, err := NewToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	ttl := s.cfg.SessionTTL
	if remember {
		ttl = s.cfg.RememberTTL
	}
	sess := &types.Session{
		ID:        sid,
		UserID:    user.ID,
		Remember:  remember,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session create failed")
		return nil, fmt.Errorf("creating session: %w", err)
	}
	token, err := s.signer.Sign(sess)
	if err != nil {
		return nil, err
	}

	// Best effort: a failed timestamp update never fails the login.
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		l.WarnContext(ctx, "Failed to update last login", slog.String("userID", user.ID.String()), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}

	metrics.Get().SessionsCreatedTotal.Add(ctx, 1)
	s.recordLogin(ctx, "success")
	l.InfoContext(ctx, "User logged in", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Logged in")
	return &types.LoginResult{User: user, Session: sess, Token: token}, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, span trace.Span, username string) error {
	n := s.throttle.Failure(username)
	s.recordLogin(ctx, "failure")
	s.logger.InfoContext(ctx, "Login failed", slog.String("method", "Login"), slog.Int("recent_failures", n))
	span.SetStatus(codes.Error, "Invalid credentials")
	return ErrInvalidCredentials
}

func (s *AuthServiceImpl) Logout(ctx context.Context, sessionID string) error {
	err := s.repo.InvalidateSession(ctx, sessionID, s.now())
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("invalidating session: %w", err)
	}
	return nil
}

func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (*types.Principal, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}

	sess, user, err := s.repo.GetSessionWithUser(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("unknown session: %w", types.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !sess.Valid(s.now()) {
		return nil, fmt.Errorf("session expired or logged out: %w", types.ErrUnauthenticated)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account deactivated: %w", types.ErrUnauthenticated)
	}
	if claims.Subject != user.ID.String() {
		return nil, fmt.Errorf("session subject mismatch: %w", types.ErrUnauthenticated)
	}

	return &types.Principal{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sess.ID,
	}, nil
}

func (s *AuthServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// RequestPasswordReset acknowledges a reset request and issues a token in the
// background for the account owning email, if any. The caller sees the same
// outcome and the same latency whether or not the address is registered.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	metrics.Get().PasswordResetRequestsTotal.Add(ctx, 1)
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		s.logger.DebugContext(ctx, "Reset requested for malformed email")
		return nil
	}

	bg := context.WithoutCancel(ctx)
	s.resets.Add(1)
	go func() {
		defer s.resets.Done()
		s.issueResetToken(bg, email)
	}()
	return nil
}

// WaitPendingResets blocks until every background token issuance finished.
func (s *AuthServiceImpl) WaitPendingResets() {
	s.resets.Wait()
}

func (s *AuthServiceImpl) issueResetToken(ctx context.Context, email string) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "IssueResetToken")
	defer span.End()
	l := s.logger.With(slog.String("method", "IssueResetToken"))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.DebugContext(ctx, "Reset requested for unknown email")
			return
		}
		l.ErrorContext(ctx, "Failed to look up user by email", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return
	}
	l = l.With(slog.String("userID", user.ID.String()))

	token, err := NewToken()
	if err != nil {
		l.ErrorContext(ctx, "Failed to generate reset token", slog.Any("error", err))
		span.RecordError(err)
		return
	}
	expires := s.now().Add(s.cfg.ResetTokenTTL)
	if err := s.repo.SetResetToken(ctx, user.ID, token, expires); err != nil {
		l.ErrorContext(ctx, "Failed to store reset token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Store failed")
		return
	}

	link := s.publicURL + "/auth/reset_password/" + token
	body, err := mailer.RenderResetEmail(user.Username, link, s.cfg.ResetTokenTTL)
	if err != nil {
		l.ErrorContext(ctx, "Failed to render reset email", slog.Any("error", err))
		span.RecordError(err)
		return
	}
	if err := s.notifier.Send(ctx, email, mailer.ResetSubject, body); err != nil {
		// The token stays valid; the user can simply ask again.
		l.ErrorContext(ctx, "Failed to hand reset email to notifier", slog.Any("error", err))
	}

	l.InfoContext(ctx, "Reset token issued", slog.Time("expires", expires))
	span.SetStatus(codes.Ok, "Token issued")
}

func (s *AuthServiceImpl) VerifyResetToken(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, ErrInvalidResetToken
	}
	user, err := s.repo.GetUserByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrInvalidResetToken
		}
		return nil, fmt.Errorf("verifying reset token: %w", err)
	}
	return user, nil
}

// ResetPassword checks the policy before touching the token, so a rejected
// password leaves the token usable.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "ResetPassword")
	defer span.End()
	l := s.logger.With(slog.String("method", "ResetPassword"))

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.VerifyResetToken(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Invalid token")
		return err
	}

	updated := *user
	if err := s.creds.SetPassword(ctx, &updated, newPassword); err != nil {
		return err
	}
	if err := s.repo.ConsumeResetToken(ctx, user.ID, token, updated.PasswordHash, s.now()); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.WarnContext(ctx, "Reset token consumed concurrently", slog.String("userID", user.ID.String()))
			span.SetStatus(codes.Error, "Lost race")
			return ErrInvalidResetToken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Consume failed")
		return fmt.Errorf("applying password reset: %w", err)
	}

	metrics.Get().PasswordResetsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "Password reset", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Password reset")
	return nil
}
