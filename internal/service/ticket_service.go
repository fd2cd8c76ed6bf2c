package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/events"
	"github.com/cozycabin/cozycabin/internal/repository"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// TextSanitizer strips markup from user supplied text before it is stored.
type TextSanitizer interface {
	PlainText(s string) string
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	sanitizer   TextSanitizer
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	Sanitizer      TextSanitizer
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
	Metadata    map[string]any
	// CustomerID lets staff file a ticket on behalf of a customer.
	CustomerID *string
}

// TicketListFilter describes listing filters. All set fields are ANDed.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
	Unassigned bool
	Search     *string
	Limit      int
	Offset     int
}

// TicketPage is one page of a ticket listing. HasMore reports whether
// rows exist past this page.
type TicketPage struct {
	Tickets []domain.Ticket
	HasMore bool
}

// TicketPatch carries the fields to change; nil fields are left untouched.
// An empty AssignedTo clears the assignee.
type TicketPatch struct {
	Subject     *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	AssignedTo  *string
	Tags        []string
	Metadata    map[string]any
}

func (p TicketPatch) touchesStaffFields() bool {
	return p.Status != nil || p.Priority != nil || p.AssignedTo != nil || p.Metadata != nil
}

// TicketDetail is a ticket with its visible thread and attachments.
type TicketDetail struct {
	Ticket      *domain.Ticket      `json:"ticket"`
	Comments    []domain.Comment    `json:"comments"`
	Attachments []domain.Attachment `json:"attachments"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		sanitizer:   deps.Sanitizer,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateTicket files a new ticket. The status is always open.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Profile, input TicketCreateInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket := &domain.Ticket{
		Subject:     s.clean(input.Subject),
		Description: s.clean(input.Description),
		Priority:    input.Priority,
		CreatedBy:   actor.ID,
		CustomerID:  actor.ID,
		Tags:        normalizeTags(input.Tags),
		Metadata:    input.Metadata,
	}
	if input.CustomerID != nil && *input.CustomerID != "" && *input.CustomerID != actor.ID {
		if !actor.Role.IsStaff() {
			return nil, apperrors.NewForbidden("customers can only file their own tickets")
		}
		ticket.CustomerID = *input.CustomerID
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.DefaultTicketPriority
	}
	if ticket.Metadata == nil {
		ticket.Metadata = map[string]any{}
	}
	ticket.ApplyStatus(domain.TicketStatusOpen, s.now())

	if err := validateTicket(ticket); err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketCreatedPayload{
			CustomerID: ticket.CustomerID,
			Priority:   ticket.Priority,
			Subject:    ticket.Subject,
		},
	})
	return ticket, nil
}

// ListTickets returns tickets newest first. Customers only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Profile, filter TicketListFilter) (*TicketPage, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": status})
		}
	}
	for _, priority := range filter.Priorities {
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": priority})
		}
	}
	repoFilter := repository.TicketFilter{
		AssigneeID: filter.AssigneeID,
		Unassigned: filter.Unassigned,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Offset:     filter.Offset,
	}
	// one extra row tells whether another page exists
	if filter.Limit > 0 {
		repoFilter.Limit = filter.Limit + 1
	}
	if filter.Search != nil {
		if term := strings.TrimSpace(*filter.Search); term != "" {
			repoFilter.SearchTerm = &term
		}
	}
	if !actor.Role.IsStaff() {
		repoFilter.CustomerID = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	page := &TicketPage{Tickets: tickets}
	if filter.Limit > 0 && len(tickets) > filter.Limit {
		page.Tickets = tickets[:filter.Limit]
		page.HasMore = true
	}
	return page, nil
}

// GetTicket loads a ticket with its comments (oldest first) and attachments.
// Internal comments are withheld from customers.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Profile, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadVisibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	attachments, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{
		Ticket:      ticket,
		Comments:    domain.VisibleComments(comments, actor.Role),
		Attachments: attachments,
	}, nil
}

// UpdateTicket applies a partial update. Customers may only change the
// subject, description and tags of their own tickets. Any status
// transition is accepted; unusual ones are logged.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.Profile, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	ticket, err := s.loadVisibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && patch.touchesStaffFields() {
		return nil, apperrors.NewForbidden("customers may only edit subject, description and tags")
	}

	oldStatus := ticket.Status
	oldAssignee := ticket.AssignedTo

	if patch.Subject != nil {
		ticket.Subject = s.clean(*patch.Subject)
	}
	if patch.Description != nil {
		ticket.Description = s.clean(*patch.Description)
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		ticket.Tags = normalizeTags(patch.Tags)
	}
	if patch.Metadata != nil {
		if ticket.Metadata == nil {
			ticket.Metadata = map[string]any{}
		}
		for key, value := range patch.Metadata {
			ticket.Metadata[key] = value
		}
	}
	if patch.AssignedTo != nil {
		if *patch.AssignedTo == "" {
			ticket.AssignedTo = nil
		} else {
			assignee := *patch.AssignedTo
			ticket.AssignedTo = &assignee
		}
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *patch.Status})
		}
		if !domain.IsConventionalTransition(oldStatus, *patch.Status) {
			s.logger.Warn("unconventional status transition",
				zap.String("ticket_id", ticket.ID),
				zap.String("from", string(oldStatus)),
				zap.String("to", string(*patch.Status)),
				zap.String("actor_id", actor.ID))
		}
		ticket.ApplyStatus(*patch.Status, s.now())
	}

	if err := validateTicket(ticket); err != nil {
		return nil, err
	}
	if err := s.tickets.UpdateFields(ctx, ticket, patch.changes(ticket)); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    actorOf(actor),
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
		})
	}
	if ticket.AssignedTo != nil && !sameAssignee(oldAssignee, ticket.AssignedTo) {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    actorOf(actor),
			Payload:  events.TicketAssignedPayload{PreviousAssignee: oldAssignee, AssigneeID: *ticket.AssignedTo},
		})
	}
	return ticket, nil
}

// changes picks the columns named by the patch, taking their values from
// the merged ticket.
func (p TicketPatch) changes(merged *domain.Ticket) repository.TicketChanges {
	var changes repository.TicketChanges
	if p.Subject != nil {
		changes.Subject = &merged.Subject
	}
	if p.Description != nil {
		changes.Description = &merged.Description
	}
	if p.Priority != nil {
		changes.Priority = &merged.Priority
	}
	if p.Status != nil {
		changes.Status = &merged.Status
		changes.ClosedAt = merged.ClosedAt
	}
	if p.AssignedTo != nil {
		changes.AssignedTo = merged.AssignedTo
		changes.ClearAssignee = merged.AssignedTo == nil
	}
	if p.Tags != nil {
		changes.Tags = merged.Tags
		if changes.Tags == nil {
			changes.Tags = []string{}
		}
	}
	if p.Metadata != nil {
		changes.Metadata = p.Metadata
	}
	return changes
}

// AssignToSelf assigns the ticket to the calling staff member and moves it
// to in_progress in one write. The write only succeeds while the stored
// assignee still equals expectedAssignee (nil meaning unassigned).
func (s *TicketService) AssignToSelf(ctx context.Context, actor *domain.Profile, ticketID string, expectedAssignee *string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff can take tickets")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err, ticketID)
	}
	if expectedAssignee != nil && *expectedAssignee == "" {
		expectedAssignee = nil
	}

	oldStatus := ticket.Status
	previous := ticket.AssignedTo
	assignee := actor.ID
	ticket.AssignedTo = &assignee
	ticket.ApplyStatus(domain.TicketStatusInProgress, s.now())

	if err := s.tickets.AssignIfUnchanged(ctx, ticket, expectedAssignee); err != nil {
		if errors.Is(err, repository.ErrAssigneeChanged) {
			return nil, apperrors.NewConflict("ticket was reassigned by someone else", map[string]any{"ticket_id": ticketID})
		}
		return nil, ticketLookupError(err, ticketID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload:  events.TicketAssignedPayload{PreviousAssignee: previous, AssigneeID: assignee},
	})
	if oldStatus != ticket.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    actorOf(actor),
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
		})
	}
	return ticket, nil
}

// DeleteTicket hard deletes a ticket. Admin only.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.Profile, ticketID string) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only admins can delete tickets")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return ticketLookupError(err, ticketID)
	}
	return nil
}

// CommentInput describes a new thread entry.
type CommentInput struct {
	TicketID   string
	Content    string
	IsInternal bool
}

// AddComment appends a comment to a ticket thread. Customers cannot
// post internal notes.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.Profile, input CommentInput) (*domain.Comment, error) {
	ticket, err := s.loadVisibleTicket(ctx, actor, input.TicketID)
	if err != nil {
		return nil, err
	}
	if input.IsInternal && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("customers cannot post internal comments")
	}
	content := s.clean(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", map[string]any{"field": "content"})
	}
	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		Content:    content,
		IsInternal: input.IsInternal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Content, 120),
		},
	})
	return comment, nil
}

// EditComment replaces the content of a comment. Only its author may edit it.
func (s *TicketService) EditComment(ctx context.Context, actor *domain.Profile, commentID, content string) (*domain.Comment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return nil, apperrors.MapError(err)
	}
	if comment.AuthorID != actor.ID {
		return nil, apperrors.NewForbidden("only the author can edit a comment")
	}
	cleaned := s.clean(content)
	if cleaned == "" {
		return nil, apperrors.NewValidationError("content is required", map[string]any{"field": "content"})
	}
	comment.Content = cleaned
	if err := s.comments.UpdateContent(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	return comment, nil
}

// loadVisibleTicket fetches a ticket the actor may see. Tickets of other
// customers are reported as missing.
func (s *TicketService) loadVisibleTicket(ctx context.Context, actor *domain.Profile, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err, ticketID)
	}
	if !canViewTicket(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func canViewTicket(actor *domain.Profile, ticket *domain.Ticket) bool {
	return actor.Role.IsStaff() || ticket.CustomerID == actor.ID
}

func validateTicket(ticket *domain.Ticket) error {
	details := map[string]any{}
	if n := utf8.RuneCountInString(ticket.Subject); n < domain.SubjectMinLength || n > domain.SubjectMaxLength {
		details["subject"] = fmt.Sprintf("must be between %d and %d characters", domain.SubjectMinLength, domain.SubjectMaxLength)
	}
	if n := utf8.RuneCountInString(ticket.Description); n < domain.DescriptionMinLength || n > domain.DescriptionMaxLength {
		details["description"] = fmt.Sprintf("must be between %d and %d characters", domain.DescriptionMinLength, domain.DescriptionMaxLength)
	}
	if !ticket.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if !ticket.Status.Valid() {
		details["status"] = "unknown status"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

func ticketLookupError(err error, ticketID string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return apperrors.MapError(err)
}

func (s *TicketService) clean(text string) string {
	if s.sanitizer != nil {
		text = s.sanitizer.PlainText(text)
	}
	return strings.TrimSpace(text)
}

func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func actorOf(profile *domain.Profile) events.Actor {
	return events.Actor{ProfileID: profile.ID, Role: profile.Role}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
