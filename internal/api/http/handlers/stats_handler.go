package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cozycabin/cozycabin/internal/service"
)

// StatsHandler exposes agent performance figures.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{service: statsService}
}

// MyStats GET /agents/me/stats.
func (h *StatsHandler) MyStats(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	stats, err := h.service.AgentPerformance(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
