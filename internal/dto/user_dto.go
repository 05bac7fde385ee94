package dto

import (
	"time"

	"github.com/noah-isme/edumark-api/internal/models"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=teacher student"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the password reset flow.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	ClassroomIDs []uint    `json:"classroom_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthResponse pairs a signed token with the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// NewUserResponse converts a model into a DTO.
func NewUserResponse(model models.User) UserResponse {
	return UserResponse{
		ID:         model.ID,
		Name:       model.Name,
		Email:      model.Email,
		Role:       model.Role,
		IsVerified: model.IsVerified,
		CreatedAt:  model.CreatedAt,
	}
}

// UserLite summarizes an account without exposing profile state.
type UserLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newUserLite(model models.User) UserLite {
	return UserLite{ID: model.ID, Name: model.Name, Email: model.Email}
}
