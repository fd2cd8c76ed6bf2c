package service

import (
	"context"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/repository"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// StatsService reports per-agent performance figures.
type StatsService struct {
	stats repository.StatsRepository
}

// NewStatsService constructs the service.
func NewStatsService(stats repository.StatsRepository) *StatsService {
	return &StatsService{stats: stats}
}

// AgentPerformance returns the caller's own figures. Staff only.
func (s *StatsService) AgentPerformance(ctx context.Context, actor *domain.Profile) (*domain.AgentPerformanceStats, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	stats, err := s.stats.AgentPerformance(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stats, nil
}
