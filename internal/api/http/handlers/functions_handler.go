package handlers

import (
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/api/validation"
	"github.com/cozycabin/cozycabin/internal/auth"
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/service"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(c *fiber.Ctx) (*auth.Principal, error)
}

// FunctionsHandler serves the function-style admin endpoints. They answer
// with a flat {"error": "..."} body instead of the REST envelope.
type FunctionsHandler struct {
	authn   Authenticator
	invites *service.InviteService
	agent   *service.AgentService
	logger  *zap.Logger
}

// NewFunctionsHandler constructs handler.
func NewFunctionsHandler(authn Authenticator, invites *service.InviteService, agent *service.AgentService, logger *zap.Logger) *FunctionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunctionsHandler{authn: authn, invites: invites, agent: agent, logger: logger}
}

// AdminAgent POST /adminAgent.
func (h *FunctionsHandler) AdminAgent(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Status(http.StatusMethodNotAllowed).JSON(dto.AdminAgentResponse{Error: "method not allowed"})
	}
	actor, err := h.admin(c)
	if err != nil {
		return c.Status(authStatus(err)).JSON(dto.AdminAgentResponse{Error: errorMessage(err)})
	}
	var req dto.AdminAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(dto.AdminAgentResponse{Error: "invalid payload"})
	}
	if err := validation.Struct(req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(dto.AdminAgentResponse{Error: errorMessage(err)})
	}
	reply, err := h.agent.Chat(c.UserContext(), actor, req.Messages, req.NewUserMessage)
	if err != nil {
		status := http.StatusBadRequest
		if apperrors.IsCode(err, "RATE_LIMITED") {
			status = http.StatusTooManyRequests
		}
		h.logger.Warn("admin agent failed", zap.Error(err))
		return c.Status(status).JSON(dto.AdminAgentResponse{Error: errorMessage(err)})
	}
	return c.JSON(dto.AdminAgentResponse{Reply: reply.Reply, ReplyHTML: reply.ReplyHTML})
}

// HandleInvite POST /handle-invite. Every failure is a 400.
func (h *FunctionsHandler) HandleInvite(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Status(http.StatusMethodNotAllowed).JSON(dto.ErrorResponse{Error: "method not allowed"})
	}
	invite, err := h.sendInvite(c)
	if err != nil {
		h.logger.Warn("handle invite failed", zap.Error(err))
		return c.Status(http.StatusBadRequest).JSON(dto.ErrorResponse{Error: errorMessage(err)})
	}
	return c.JSON(dto.MessageResponse{Message: "Invitation sent to " + invite.Email})
}

// InviteUser POST /invite-user. Input problems are 400, auth problems
// 401/403 and delivery failures 500.
func (h *FunctionsHandler) InviteUser(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Status(http.StatusMethodNotAllowed).JSON(dto.ErrorResponse{Error: "method not allowed"})
	}
	invite, err := h.sendInvite(c)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case apperrors.IsCode(err, "VALIDATION_FAILED"), apperrors.IsCode(err, "CONFLICT"):
			status = http.StatusBadRequest
		case apperrors.IsCode(err, "UNAUTHORIZED"), apperrors.IsCode(err, "FORBIDDEN"):
			status = authStatus(err)
		}
		h.logger.Warn("invite user failed", zap.Error(err), zap.Int("status", status))
		return c.Status(status).JSON(dto.ErrorResponse{Error: errorMessage(err)})
	}
	return c.JSON(dto.MessageResponse{Message: "Invitation sent to " + invite.Email})
}

func (h *FunctionsHandler) sendInvite(c *fiber.Ctx) (*domain.Invite, error) {
	actor, err := h.admin(c)
	if err != nil {
		return nil, err
	}
	var req dto.InviteRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.invites.SendInvite(c.UserContext(), actor, req.Email, req.Role)
}

func (h *FunctionsHandler) admin(c *fiber.Ctx) (*domain.Profile, error) {
	principal, err := h.authn.Authenticate(c)
	if err != nil {
		return nil, err
	}
	if principal.Role() != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	return principal.Profile, nil
}

func authStatus(err error) int {
	domainErr := apperrors.ToDomainError(err)
	if domainErr.HTTPStatus == http.StatusUnauthorized || domainErr.HTTPStatus == http.StatusForbidden {
		return domainErr.HTTPStatus
	}
	return http.StatusBadRequest
}

// errorMessage flattens a DomainError, folding field details in.
func errorMessage(err error) string {
	domainErr := apperrors.ToDomainError(err)
	if domainErr.Code != "VALIDATION_FAILED" {
		return domainErr.Message
	}
	fields := make([]string, 0, len(domainErr.Details))
	for field := range domainErr.Details {
		if field != "field" {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	for _, field := range fields {
		if text, ok := domainErr.Details[field].(string); ok {
			return field + " " + text
		}
	}
	return domainErr.Message
}
