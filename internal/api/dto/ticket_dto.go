package dto

import (
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject" validate:"required,min=5,max=100"`
	Description string                `json:"description" validate:"required,min=10,max=5000"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=urgent high normal medium low"`
	Tags        []string              `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	CustomerID  *string               `json:"customer_id" validate:"omitempty,uuid"`
	Metadata    map[string]any        `json:"metadata"`
}

// Input converts the request into the service input.
func (r CreateTicketRequest) Input() service.TicketCreateInput {
	return service.TicketCreateInput{
		Subject:     r.Subject,
		Description: r.Description,
		Priority:    r.Priority,
		Tags:        r.Tags,
		Metadata:    r.Metadata,
		CustomerID:  r.CustomerID,
	}
}

// UpdateTicketRequest carries only the fields the caller wants changed.
// An empty assigned_to unassigns the ticket.
type UpdateTicketRequest struct {
	Subject     *string                `json:"subject" validate:"omitempty,min=5,max=100"`
	Description *string                `json:"description" validate:"omitempty,min=10,max=5000"`
	Status      *domain.TicketStatus   `json:"status" validate:"omitempty,oneof=open in_progress pending on_hold solved closed"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitempty,oneof=urgent high normal medium low"`
	AssignedTo  *string                `json:"assigned_to"`
	Tags        []string               `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	Metadata    map[string]any         `json:"metadata"`
}

// Patch converts the request into the service patch.
func (r UpdateTicketRequest) Patch() service.TicketPatch {
	return service.TicketPatch{
		Subject:     r.Subject,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		AssignedTo:  r.AssignedTo,
		Tags:        r.Tags,
		Metadata:    r.Metadata,
	}
}

// AssignSelfRequest names the assignee the caller last observed.
type AssignSelfRequest struct {
	ExpectedAssignee *string `json:"expected_assignee"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content" validate:"required,max=10000"`
	IsInternal bool   `json:"is_internal"`
}

// UpdateCommentRequest payload.
type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}
