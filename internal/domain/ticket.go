package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusSolved     TicketStatus = "solved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityUrgent TicketPriority = "urgent"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityLow    TicketPriority = "low"
)

// DefaultTicketPriority applies when a draft does not name one.
const DefaultTicketPriority = TicketPriorityLow

// Ticket bounds enforced before any write.
const (
	SubjectMinLength     = 5
	SubjectMaxLength     = 100
	DescriptionMinLength = 10
	DescriptionMaxLength = 5000
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Status      TicketStatus   `json:"status"`
	Priority    TicketPriority `json:"priority"`
	CreatedBy   string         `json:"created_by"`
	CustomerID  string         `json:"customer_id"`
	AssignedTo  *string        `json:"assigned_to"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ClosedAt    *time.Time     `json:"closed_at"`
}

var ticketStatuses = map[TicketStatus]struct{}{
	TicketStatusOpen:       {},
	TicketStatusInProgress: {},
	TicketStatusPending:    {},
	TicketStatusOnHold:     {},
	TicketStatusSolved:     {},
	TicketStatusClosed:     {},
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := ticketStatuses[s]
	return ok
}

var priorityRanks = map[TicketPriority]int{
	TicketPriorityUrgent: 0,
	TicketPriorityHigh:   1,
	TicketPriorityNormal: 2,
	TicketPriorityMedium: 3,
	TicketPriorityLow:    4,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Rank orders priorities from most to least severe; unknown values sort last.
func (p TicketPriority) Rank() int {
	if rank, ok := priorityRanks[p]; ok {
		return rank
	}
	return len(priorityRanks)
}

// ApplyStatus sets the status and keeps ClosedAt consistent with it:
// non-nil exactly when the ticket is closed.
func (t *Ticket) ApplyStatus(status TicketStatus, now time.Time) {
	t.Status = status
	if status == TicketStatusClosed {
		if t.ClosedAt == nil {
			closed := now
			t.ClosedAt = &closed
		}
		return
	}
	t.ClosedAt = nil
}

// IsAssignedTo reports whether the ticket is assigned to profileID.
func (t *Ticket) IsAssignedTo(profileID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == profileID
}

// Status transitions the UI presents. The data layer accepts any
// transition; this table is only used to flag unusual ones.
var conventionalTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusPending, TicketStatusSolved, TicketStatusClosed},
	TicketStatusPending:    {TicketStatusInProgress},
	TicketStatusSolved:     {TicketStatusClosed},
}

// IsConventionalTransition reports whether current -> next follows the
// usual workflow. Moving to closed is always conventional.
func IsConventionalTransition(current, next TicketStatus) bool {
	if current == next || next == TicketStatusClosed {
		return true
	}
	for _, candidate := range conventionalTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
