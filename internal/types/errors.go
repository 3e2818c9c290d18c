package types

import (
	"errors"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrNotFound        = errors.New("requested item not found")
	ErrTooManyAttempts = errors.New("too many attempts")
)

// ValidationError reports a single field that failed validation. No write
// happens when one is returned.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) PublicMessage() string { return e.Message }

// ConflictError names every unique field that collided.
type ConflictError struct {
	Fields []string `json:"fields"`
}

func (e *ConflictError) Error() string {
	return strings.Join(e.Fields, ", ") + " already in use"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PublicMessage is the user-facing wording for the collision.
func (e *ConflictError) PublicMessage() string {
	var parts []string
	for _, f := range e.Fields {
		switch f {
		case "username":
			parts = append(parts, "Username already exists. Please choose a different one.")
		case "email":
			parts = append(parts, "Email already registered. Please use a different one or log in.")
		default:
			parts = append(parts, f+" already in use.")
		}
	}
	return strings.Join(parts, " ")
}

// SelfProtectionError is returned when an admin targets their own account with
// an operation that would lock them out. It is a Forbidden error with a
// specific message.
type SelfProtectionError struct {
	Action  string
	Message string
}

func (e *SelfProtectionError) Error() string { return e.Message }

func (e *SelfProtectionError) Unwrap() error { return ErrForbidden }

func (e *SelfProtectionError) PublicMessage() string { return e.Message }

var (
	ErrSelfDeactivation = &SelfProtectionError{Action: "deactivate", Message: "You cannot deactivate your own account."}
	ErrSelfDemotion     = &SelfProtectionError{Action: "demote", Message: "You cannot remove your own admin role."}
	ErrSelfDeletion     = &SelfProtectionError{Action: "delete", Message: "You cannot delete your own administrator account."}
)

// PublicError pairs a sentinel kind with the exact message shown to clients.
type PublicError struct {
	Kind    error
	Message string
}

func (e *PublicError) Error() string { return e.Kind.Error() + ": " + e.Message }

func (e *PublicError) Unwrap() error { return e.Kind }

func (e *PublicError) PublicMessage() string { return e.Message }
