package auth

import (
	"strings"

	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit. Longer inputs would be
	// silently truncated.
	MaxPasswordBytes = 72
)

// PasswordSpecialChars is the accepted set for the "special" rule.
const PasswordSpecialChars = "!@#$%^&*()_-+=[]{};:'\",./?<>~`|"

type passwordRule struct {
	name    string
	message string
	ok      func(string) bool
}

// Order matters: the first failing rule is the one reported.
var passwordRules = []passwordRule{
	{
		name:    "min_length",
		message: "Password must be at least 8 characters long.",
		ok:      func(s string) bool { return len([]rune(s)) >= MinPasswordLength },
	},
	{
		name:    "digit",
		message: "Password must contain at least one digit.",
		ok:      func(s string) bool { return containsRange(s, '0', '9') },
	},
	{
		name:    "uppercase",
		message: "Password must contain at least one uppercase letter.",
		ok:      func(s string) bool { return containsRange(s, 'A', 'Z') },
	},
	{
		name:    "lowercase",
		message: "Password must contain at least one lowercase letter.",
		ok:      func(s string) bool { return containsRange(s, 'a', 'z') },
	},
	{
		name:    "special",
		message: "Password must contain at least one special character.",
		ok:      func(s string) bool { return strings.ContainsAny(s, PasswordSpecialChars) },
	},
	{
		name:    "max_length",
		message: "Password must be at most 72 bytes long.",
		ok:      func(s string) bool { return len(s) <= MaxPasswordBytes },
	},
}

// containsRange reports whether s has a byte in [lo, hi]. Only ASCII classes
// count, so fullwidth or non-Latin letters and digits do not satisfy a rule.
func containsRange(s string, lo, hi byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= lo && s[i] <= hi {
			return true
		}
	}
	return false
}

// ValidatePassword checks candidate against the password policy and returns
// a *types.ValidationError naming the first rule it breaks.
func ValidatePassword(candidate string) error {
	for _, rule := range passwordRules {
		if !rule.ok(candidate) {
			return &types.ValidationError{
				Field:   "password",
				Rule:    rule.name,
				Message: rule.message,
			}
		}
	}
	return nil
}
