package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/service"
)

// AuthHandler serves sign-up, sign-in and profile endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// SignUp POST /auth/signup.
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.service.SignUp(c.UserContext(), service.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		InviteToken: req.InviteToken,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": session})
}

// SignIn POST /auth/signin.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.service.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": session})
}

// Me GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	profile, err := h.service.Me(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// UpdateMe PATCH /profiles/me.
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	profile, err := h.service.UpdateOwnProfile(c.UserContext(), actor, service.ProfileUpdate{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// UpdateProfile PATCH /profiles/:id (admin).
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	var req dto.AdminUpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	profile, err := h.service.AdminUpdateProfile(c.UserContext(), actor, c.Params("id"), service.AdminProfileUpdate{
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}
