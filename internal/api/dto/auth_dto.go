package dto

import (
	"github.com/cozycabin/cozycabin/internal/domain"
)

// SignUpRequest payload.
type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FullName    string `json:"full_name" validate:"max=200"`
	InviteToken string `json:"invite_token"`
}

// SignInRequest payload.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest changes self-service fields. An empty avatar_url clears it.
type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
}

// AdminUpdateProfileRequest changes role or active flag.
type AdminUpdateProfileRequest struct {
	Role     *domain.Role `json:"role" validate:"omitempty,oneof=customer agent admin"`
	IsActive *bool        `json:"is_active"`
}
