package dto

import "github.com/cozycabin/cozycabin/internal/domain"

// InviteRequest is the body of /handle-invite and /invite-user.
type InviteRequest struct {
	Email string      `json:"email" validate:"required,email"`
	Role  domain.Role `json:"role" validate:"required,oneof=admin agent"`
}

// MessageResponse is the flat success body of invite endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the flat error body of the function-style endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
