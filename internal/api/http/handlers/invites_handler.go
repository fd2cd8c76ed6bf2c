package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/service"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// InvitesHandler serves the REST invite endpoints.
type InvitesHandler struct {
	service *service.InviteService
}

// NewInvitesHandler constructs handler.
func NewInvitesHandler(inviteService *service.InviteService) *InvitesHandler {
	return &InvitesHandler{service: inviteService}
}

// List GET /invites.
func (h *InvitesHandler) List(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	invites, err := h.service.ListInvites(c.UserContext(), actor, limit, offset)
	if err != nil {
		return err
	}
	if invites == nil {
		invites = []domain.Invite{}
	}
	return c.JSON(fiber.Map{"data": invites})
}

// Verify GET /invites/verify?token=.
func (h *InvitesHandler) Verify(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return apperrors.NewValidationError("token is required", map[string]any{"field": "token"})
	}
	verification, err := h.service.VerifyInvite(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": verification})
}
