package domain

// AgentPerformanceStats aggregates an agent's workload and outcomes.
type AgentPerformanceStats struct {
	AssignedTickets     int     `json:"assigned_tickets"`
	ResolvedToday       int     `json:"resolved_today"`
	AverageResponseTime float64 `json:"average_response_time"`
	SatisfactionRate    float64 `json:"satisfaction_rate"`
}
