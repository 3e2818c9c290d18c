package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail performs the structural local@domain.tld check.
func ValidateEmail(candidate string) error {
	if !emailRegex.MatchString(candidate) {
		return &types.ValidationError{Field: "email", Rule: "email", Message: "Invalid email address."}
	}
	return nil
}

// CredentialStore is the only code path that writes User.PasswordHash.
// bcrypt calls are bounded by a weighted semaphore.
type CredentialStore struct {
	logger *slog.Logger
	cost   int
	slots  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

func NewCredentialStore(cost int, workers int64, logger *slog.Logger) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = 1
	}
	return &CredentialStore{
		logger: logger,
		cost:   cost,
		slots:  semaphore.NewWeighted(workers),
	}
}

// SetPassword validates plaintext against the policy and, on success, stores
// a fresh bcrypt hash on user. On failure user is left untouched.
func (c *CredentialStore) SetPassword(ctx context.Context, user *types.User, plaintext string) error {
	if err := ValidatePassword(plaintext); err != nil {
		return err
	}

	var hash []byte
	err := c.withSlot(ctx, "hash", func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
		return err
	})
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plaintext matches the user's stored hash.
func (c *CredentialStore) CheckPassword(ctx context.Context, user *types.User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		c.CheckAgainstDummy(ctx, plaintext)
		return false
	}
	var match bool
	err := c.withSlot(ctx, "compare", func() error {
		match = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)) == nil
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Password comparison aborted", slog.Any("error", err))
		return false
	}
	return match
}

// CheckAgainstDummy spends the same bcrypt work as a real comparison so that
// lookups of unknown usernames take as long as wrong passwords.
func (c *CredentialStore) CheckAgainstDummy(ctx context.Context, plaintext string) {
	c.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), c.cost)
		if err != nil {
			c.logger.Error("Failed to build dummy hash", slog.Any("error", err))
			return
		}
		c.dummyHash = h
	})
	if c.dummyHash == nil {
		return
	}
	_ = c.withSlot(ctx, "compare", func() error {
		_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(plaintext))
		return nil
	})
}

func (c *CredentialStore) withSlot(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for hashing slot: %w", err)
	}
	defer c.slots.Release(1)

	err := fn()
	metrics.Get().PasswordHashDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
	return err
}

// normalizeUsername trims surrounding whitespace. Usernames stay
// case-sensitive.
func normalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

const (
	MinUsernameLength = 4
	MaxUsernameLength = 100
)

// ValidateUsername checks the length of an already normalized username.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n == 0:
		return &types.ValidationError{Field: "username", Rule: "required", Message: "This field is required."}
	case n < MinUsernameLength:
		return &types.ValidationError{Field: "username", Rule: "min", Message: fmt.Sprintf("Must be at least %d characters long.", MinUsernameLength)}
	case n > MaxUsernameLength:
		return &types.ValidationError{Field: "username", Rule: "max", Message: fmt.Sprintf("Must be at most %d characters long.", MaxUsernameLength)}
	}
	return nil
}
