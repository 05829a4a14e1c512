package dto

import "github.com/educlear/educlear-api/internal/models"

// CreateUserRequest registers a new account (admin only).
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required"`
	Department string          `json:"department"`
}

// UpdateUserRequest mutates profile fields; zero values are ignored.
type UpdateUserRequest struct {
	FullName   *string          `json:"full_name"`
	Role       *models.UserRole `json:"role"`
	Department *string          `json:"department"`
	Active     *bool            `json:"active"`
}
