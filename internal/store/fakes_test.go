package store

import (
	"context"
	"errors"
	"sync"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/client"
	"github.com/cozycabin/cozycabin/internal/domain"
)

var errBackend = errors.New("backend unavailable")

type fakeTicketBackend struct {
	ListTicketsFunc      func(ctx context.Context, query client.TicketQuery) ([]domain.Ticket, error)
	CreateTicketFunc     func(ctx context.Context, req dto.CreateTicketRequest) (*domain.Ticket, error)
	GetTicketFunc        func(ctx context.Context, id string) (*client.TicketDetail, error)
	UpdateTicketFunc     func(ctx context.Context, id string, req dto.UpdateTicketRequest) (*domain.Ticket, error)
	AssignToSelfFunc     func(ctx context.Context, id string, expected *string) (*domain.Ticket, error)
	DeleteTicketFunc     func(ctx context.Context, id string) error
	AddCommentFunc       func(ctx context.Context, ticketID string, req dto.CreateCommentRequest) (*domain.Comment, error)
	EditCommentFunc      func(ctx context.Context, id, content string) (*domain.Comment, error)
	UploadAttachmentFunc func(ctx context.Context, ticketID string, file client.File, commentID *string) (*domain.Attachment, error)
	DeleteAttachmentFunc func(ctx context.Context, id string) error
	HasMoreFunc          func(query client.TicketQuery) bool

	mu    sync.Mutex
	calls int
}

func (f *fakeTicketBackend) called() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeTicketBackend) ListTickets(ctx context.Context, query client.TicketQuery) (*client.TicketPage, error) {
	f.called()
	tickets, err := f.ListTicketsFunc(ctx, query)
	if err != nil {
		return nil, err
	}
	page := &client.TicketPage{Tickets: tickets, Page: max(query.Page, 1)}
	if f.HasMoreFunc != nil {
		page.HasMore = f.HasMoreFunc(query)
	}
	return page, nil
}

func (f *fakeTicketBackend) CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*domain.Ticket, error) {
	f.called()
	return f.CreateTicketFunc(ctx, req)
}

func (f *fakeTicketBackend) GetTicket(ctx context.Context, id string) (*client.TicketDetail, error) {
	f.called()
	return f.GetTicketFunc(ctx, id)
}

func (f *fakeTicketBackend) UpdateTicket(ctx context.Context, id string, req dto.UpdateTicketRequest) (*domain.Ticket, error) {
	f.called()
	return f.UpdateTicketFunc(ctx, id, req)
}

func (f *fakeTicketBackend) AssignToSelf(ctx context.Context, id string, expected *string) (*domain.Ticket, error) {
	f.called()
	return f.AssignToSelfFunc(ctx, id, expected)
}

func (f *fakeTicketBackend) DeleteTicket(ctx context.Context, id string) error {
	f.called()
	return f.DeleteTicketFunc(ctx, id)
}

func (f *fakeTicketBackend) AddComment(ctx context.Context, ticketID string, req dto.CreateCommentRequest) (*domain.Comment, error) {
	f.called()
	return f.AddCommentFunc(ctx, ticketID, req)
}

func (f *fakeTicketBackend) EditComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	f.called()
	return f.EditCommentFunc(ctx, id, content)
}

func (f *fakeTicketBackend) UploadAttachment(ctx context.Context, ticketID string, file client.File, commentID *string) (*domain.Attachment, error) {
	f.called()
	return f.UploadAttachmentFunc(ctx, ticketID, file, commentID)
}

func (f *fakeTicketBackend) DeleteAttachment(ctx context.Context, id string) error {
	f.called()
	return f.DeleteAttachmentFunc(ctx, id)
}

type fakeAgentBackend struct {
	histories [][]domain.ChatMessage
	reply     string
	err       error
}

func (f *fakeAgentBackend) AdminAgent(_ context.Context, history []domain.ChatMessage, newMessage string) (*dto.AdminAgentResponse, error) {
	f.histories = append(f.histories, append(history, domain.ChatMessage{Role: domain.ChatRoleUser, Content: newMessage}))
	if f.err != nil {
		return nil, f.err
	}
	return &dto.AdminAgentResponse{Reply: f.reply}, nil
}

type fakeAuthBackend struct {
	session *domain.Session
	profile *domain.Profile
	err     error
	token   string
}

func (f *fakeAuthBackend) SignIn(context.Context, string, string) (*domain.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthBackend) SignUp(context.Context, dto.SignUpRequest) (*domain.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthBackend) Me(context.Context) (*domain.Profile, error) {
	return f.profile, f.err
}

func (f *fakeAuthBackend) SetToken(token string) { f.token = token }

type fakeInviteBackend struct {
	invites      []domain.Invite
	verification *domain.InviteVerification
	message      string
	err          error
	sent         int
}

func (f *fakeInviteBackend) ListInvites(context.Context) ([]domain.Invite, error) {
	return f.invites, f.err
}

func (f *fakeInviteBackend) SendInvite(context.Context, string, domain.Role) (string, error) {
	f.sent++
	return f.message, f.err
}

func (f *fakeInviteBackend) VerifyInvite(context.Context, string) (*domain.InviteVerification, error) {
	return f.verification, f.err
}
