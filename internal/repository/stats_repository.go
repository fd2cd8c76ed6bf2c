package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// StatsRepository computes aggregate reports.
type StatsRepository interface {
	AgentPerformance(ctx context.Context, agentID string) (*domain.AgentPerformanceStats, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository constructs repository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

// Response time is measured in hours from ticket creation to the
// agent's first comment. Satisfaction is the share of rated resolved
// tickets with metadata.rating >= 4.
const agentPerformanceQuery = `
    SELECT
        (SELECT COUNT(*) FROM tickets
            WHERE assigned_to=$1 AND status NOT IN ('solved', 'closed')),
        (SELECT COUNT(*) FROM tickets
            WHERE assigned_to=$1 AND status IN ('solved', 'closed')
              AND updated_at >= date_trunc('day', NOW())),
        (SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (fc.first_at - t.created_at)) / 3600.0), 0)
            FROM tickets t
            JOIN LATERAL (
                SELECT MIN(c.created_at) AS first_at FROM ticket_comments c
                WHERE c.ticket_id = t.id AND c.author_id = $1
            ) fc ON fc.first_at IS NOT NULL
            WHERE t.assigned_to=$1),
        (SELECT COALESCE(100.0 * AVG(CASE WHEN (metadata->>'rating')::numeric >= 4 THEN 1 ELSE 0 END), 0)
            FROM tickets
            WHERE assigned_to=$1 AND status IN ('solved', 'closed')
              AND jsonb_typeof(metadata->'rating') = 'number')`

func (r *statsRepository) AgentPerformance(ctx context.Context, agentID string) (*domain.AgentPerformanceStats, error) {
	var stats domain.AgentPerformanceStats
	if err := r.pool.QueryRow(ctx, agentPerformanceQuery, agentID).Scan(
		&stats.AssignedTickets,
		&stats.ResolvedToday,
		&stats.AverageResponseTime,
		&stats.SatisfactionRate,
	); err != nil {
		return nil, err
	}
	return &stats, nil
}
