package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/events"
	"github.com/cozycabin/cozycabin/internal/repository"
)

// TicketMailer delivers ticket update e-mails to customers.
type TicketMailer interface {
	SendTicketUpdate(to string, ticket *domain.Ticket, summary string) error
}

// NotificationService turns domain events into customer e-mails.
type NotificationService struct {
	dispatcher events.Dispatcher
	tickets    repository.TicketRepository
	profiles   repository.ProfileRepository
	mailer     TicketMailer
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for notification service.
type NotificationDependencies struct {
	Dispatcher  events.Dispatcher
	TicketRepo  repository.TicketRepository
	ProfileRepo repository.ProfileRepository
	Mailer      TicketMailer
	Logger      *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		tickets:    deps.TicketRepo,
		profiles:   deps.ProfileRepo,
		mailer:     deps.Mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.logEvent)
	n.dispatcher.Subscribe(events.EventInviteCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.handleTicketCommentAdded)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info("domain event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.ProfileID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	_ = n.logEvent(ctx, event)
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	summary := fmt.Sprintf("The status of your ticket changed from %s to %s.", payload.OldStatus, payload.NewStatus)
	return n.notifyCustomer(ctx, event, summary)
}

// Only public replies written by staff reach the customer.
func (n *NotificationService) handleTicketCommentAdded(ctx context.Context, event events.Event) error {
	_ = n.logEvent(ctx, event)
	payload, ok := event.Payload.(events.TicketCommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.IsInternal || !event.Actor.Role.IsStaff() {
		return nil
	}
	summary := "Our support team replied to your ticket:\n\n" + payload.BodyPreview
	return n.notifyCustomer(ctx, event, summary)
}

func (n *NotificationService) notifyCustomer(ctx context.Context, event events.Event, summary string) error {
	if n.mailer == nil {
		return nil
	}
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", event.TicketID, err)
	}
	// customers are not mailed about their own actions
	if ticket.CustomerID == event.Actor.ProfileID {
		return nil
	}
	customer, err := n.profiles.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", ticket.CustomerID, err)
	}
	if !customer.IsActive {
		return nil
	}
	if err := n.mailer.SendTicketUpdate(customer.Email, ticket, summary); err != nil {
		return fmt.Errorf("send ticket update: %w", err)
	}
	n.logger.Debug("ticket update mailed",
		zap.String("ticket_id", ticket.ID),
		zap.String("event_type", string(event.Type)))
	return nil
}
