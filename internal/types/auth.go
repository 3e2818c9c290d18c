package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=4,max=100" example:"alice"`
	Email           string `json:"email" validate:"omitempty,max=120" example:"alice@example.com"`
	Password        string `json:"password" validate:"required" example:"Alice123!"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password" example:"Alice123!"`
}

// Normalize trims the identity fields so length rules see what gets stored.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100" example:"alice"`
	Password string `json:"password" validate:"required" example:"Alice123!"`
	Remember bool   `json:"remember"`
}

// LoginResponse is written after a successful login.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// RequestResetRequest is the body of POST /auth/request_reset.
type RequestResetRequest struct {
	Email string `json:"email" example:"alice@example.com"`
}

// ResetPasswordRequest is the body of POST /auth/reset_password/{token}.
type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required" example:"Beta456@"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password" example:"Beta456@"`
}

// EditUserRequest is the body of POST /admin/users/{id}/edit.
type EditUserRequest struct {
	Role     string `json:"role" validate:"required,oneof=user admin" example:"user"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

// LoginResult is what the session manager hands back after a successful login.
type LoginResult struct {
	User    *User
	Session *Session
	Token   string
}

// Response is a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty" example:"Operation successful"`
	Error   string `json:"error,omitempty" example:"Resource not found"`
}

// DeletionReport summarises what happened to dependent rows when an entity
// was removed.
type DeletionReport struct {
	Entity                string    `json:"entity"`
	ID                    uuid.UUID `json:"id"`
	ExposuresDetached     int64     `json:"exposures_detached,omitempty"`
	HealthRecordsDetached int64     `json:"health_records_detached,omitempty"`
	ExposuresDeleted      int64     `json:"exposures_deleted,omitempty"`
	HealthRecordsDeleted  int64     `json:"health_records_deleted,omitempty"`
	DeletedAt             time.Time `json:"deleted_at"`
}
