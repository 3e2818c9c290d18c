package auth

import (
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

// ErrInvalidCredentials is the only login failure callers ever see, whether
// the user is unknown, inactive or the password is wrong.
var ErrInvalidCredentials = &types.PublicError{
	Kind:    types.ErrUnauthenticated,
	Message: "Login Unsuccessful. Please check username and password.",
}

// ErrInvalidResetToken covers unknown, expired and already-consumed tokens.
var ErrInvalidResetToken = &types.PublicError{
	Kind:    types.ErrUnauthenticated,
	Message: "That is an invalid or expired token.",
}

// ErrLoginThrottled is returned once a username has too many recent failures.
var ErrLoginThrottled = &types.PublicError{
	Kind:    types.ErrTooManyAttempts,
	Message: "Too many failed login attempts. Please try again later.",
}

const (
	MsgRegistered     = "Your account has been created! You are now able to log in."
	MsgLoggedIn       = "Login successful."
	MsgResetRequested = "If an account with that email exists, a password reset link has been sent."
	MsgResetTokenOK   = "Token is valid. Choose a new password."
	MsgPasswordReset  = "Your password has been updated! You are now able to log in."
	MsgLoginRequired  = "Please log in to access this page."
)
