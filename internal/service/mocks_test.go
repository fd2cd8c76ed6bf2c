package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/events"
	"github.com/cozycabin/cozycabin/internal/llm"
	"github.com/cozycabin/cozycabin/internal/ratelimit"
	"github.com/cozycabin/cozycabin/internal/repository"
	"github.com/cozycabin/cozycabin/internal/storage"
)

type mockTicketRepository struct {
	CreateFunc            func(ctx context.Context, ticket *domain.Ticket) error
	UpdateFieldsFunc      func(ctx context.Context, ticket *domain.Ticket, changes repository.TicketChanges) error
	AssignIfUnchangedFunc func(ctx context.Context, ticket *domain.Ticket, expected *string) error
	GetByIDFunc           func(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilterFunc    func(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error)
	DeleteFunc            func(ctx context.Context, id string) error
}

func (m *mockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ticket)
	}
	ticket.ID = "ticket-new"
	return nil
}

func (m *mockTicketRepository) UpdateFields(ctx context.Context, ticket *domain.Ticket, changes repository.TicketChanges) error {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, ticket, changes)
	}
	return nil
}

func (m *mockTicketRepository) AssignIfUnchanged(ctx context.Context, ticket *domain.Ticket, expected *string) error {
	if m.AssignIfUnchangedFunc != nil {
		return m.AssignIfUnchangedFunc(ctx, ticket, expected)
	}
	return nil
}

func (m *mockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTicketRepository) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if m.ListWithFilterFunc != nil {
		return m.ListWithFilterFunc(ctx, filter)
	}
	return []domain.Ticket{}, nil
}

func (m *mockTicketRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type mockCommentRepository struct {
	CreateFunc        func(ctx context.Context, comment *domain.Comment) error
	GetByIDFunc       func(ctx context.Context, id string) (*domain.Comment, error)
	ListByTicketFunc  func(ctx context.Context, ticketID string) ([]domain.Comment, error)
	UpdateContentFunc func(ctx context.Context, comment *domain.Comment) error
}

func (m *mockCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, comment)
	}
	comment.ID = "comment-new"
	return nil
}

func (m *mockCommentRepository) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockCommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	if m.ListByTicketFunc != nil {
		return m.ListByTicketFunc(ctx, ticketID)
	}
	return []domain.Comment{}, nil
}

func (m *mockCommentRepository) UpdateContent(ctx context.Context, comment *domain.Comment) error {
	if m.UpdateContentFunc != nil {
		return m.UpdateContentFunc(ctx, comment)
	}
	return nil
}

type mockAttachmentRepository struct {
	CreateFunc       func(ctx context.Context, attachment *domain.Attachment) error
	GetByIDFunc      func(ctx context.Context, id string) (*domain.Attachment, error)
	ListByTicketFunc func(ctx context.Context, ticketID string) ([]domain.Attachment, error)
	DeleteFunc       func(ctx context.Context, id string) error
}

func (m *mockAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, attachment)
	}
	attachment.ID = "attachment-new"
	return nil
}

func (m *mockAttachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockAttachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	if m.ListByTicketFunc != nil {
		return m.ListByTicketFunc(ctx, ticketID)
	}
	return []domain.Attachment{}, nil
}

func (m *mockAttachmentRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type mockProfileRepository struct {
	CreateFunc           func(ctx context.Context, profile *domain.Profile) error
	CreateWithInviteFunc func(ctx context.Context, profile *domain.Profile, inviteID string) error
	UpdateFunc           func(ctx context.Context, profile *domain.Profile) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.Profile, error)
	GetByEmailFunc       func(ctx context.Context, email string) (*domain.Profile, error)
}

func (m *mockProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, profile)
	}
	profile.ID = "profile-new"
	return nil
}

func (m *mockProfileRepository) CreateWithInvite(ctx context.Context, profile *domain.Profile, inviteID string) error {
	if m.CreateWithInviteFunc != nil {
		return m.CreateWithInviteFunc(ctx, profile, inviteID)
	}
	profile.ID = "profile-new"
	return nil
}

func (m *mockProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, profile)
	}
	return nil
}

func (m *mockProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockProfileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, pgx.ErrNoRows
}

type mockInviteRepository struct {
	CreateFunc     func(ctx context.Context, invite *domain.Invite) error
	GetByTokenFunc func(ctx context.Context, token string) (*domain.Invite, error)
	ListFunc       func(ctx context.Context, limit, offset int) ([]domain.Invite, error)
	DeleteFunc     func(ctx context.Context, id string) error
}

func (m *mockInviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, invite)
	}
	invite.ID = "invite-new"
	return nil
}

func (m *mockInviteRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockInviteRepository) List(ctx context.Context, limit, offset int) ([]domain.Invite, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []domain.Invite{}, nil
}

func (m *mockInviteRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type mockStatsRepository struct {
	AgentPerformanceFunc func(ctx context.Context, agentID string) (*domain.AgentPerformanceStats, error)
}

func (m *mockStatsRepository) AgentPerformance(ctx context.Context, agentID string) (*domain.AgentPerformanceStats, error) {
	if m.AgentPerformanceFunc != nil {
		return m.AgentPerformanceFunc(ctx, agentID)
	}
	return &domain.AgentPerformanceStats{}, nil
}

// memoryObjectStore is an in-memory ObjectStore with injectable failures.
type memoryObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	UploadErr error
	RemoveErr error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}}
}

func (s *memoryObjectStore) Upload(_ context.Context, objectPath string, r io.Reader) error {
	if s.UploadErr != nil {
		return s.UploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath] = data
	return nil
}

func (s *memoryObjectStore) Open(_ context.Context, objectPath string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectPath]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStore) Remove(_ context.Context, objectPath string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectPath)
	return nil
}

func (s *memoryObjectStore) has(objectPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectPath]
	return ok
}

func (s *memoryObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// recordingDispatcher captures published events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	types := make([]events.EventType, 0, len(d.events))
	for _, event := range d.events {
		types = append(types, event.Type)
	}
	return types
}

type mockProvider struct {
	CompleteFunc func(ctx context.Context, request llm.Request) (*llm.Response, error)
}

func (m *mockProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, request)
	}
	return &llm.Response{Content: "ok"}, nil
}

type mockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limits ratelimit.Limits) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limits ratelimit.Limits) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limits)
	}
	return true, nil
}

type mockInviteMailer struct {
	SendInviteFunc func(to string, role domain.Role, signupURL string, expiresAt time.Time) error
}

func (m *mockInviteMailer) SendInvite(to string, role domain.Role, signupURL string, expiresAt time.Time) error {
	if m.SendInviteFunc != nil {
		return m.SendInviteFunc(to, role, signupURL, expiresAt)
	}
	return nil
}

type mockTicketMailer struct {
	SendTicketUpdateFunc func(to string, ticket *domain.Ticket, summary string) error
}

func (m *mockTicketMailer) SendTicketUpdate(to string, ticket *domain.Ticket, summary string) error {
	if m.SendTicketUpdateFunc != nil {
		return m.SendTicketUpdateFunc(to, ticket, summary)
	}
	return nil
}

func customer(id string) *domain.Profile {
	return &domain.Profile{ID: id, Email: id + "@example.com", Role: domain.RoleCustomer, IsActive: true}
}

func agent(id string) *domain.Profile {
	return &domain.Profile{ID: id, Email: id + "@example.com", Role: domain.RoleAgent, IsActive: true}
}

func admin(id string) *domain.Profile {
	return &domain.Profile{ID: id, Email: id + "@example.com", Role: domain.RoleAdmin, IsActive: true}
}

func strPtr(s string) *string {
	return &s
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func sampleTicket(id, customerID string) *domain.Ticket {
	return &domain.Ticket{
		ID:          id,
		Subject:     "Cannot log in",
		Description: "The login page keeps spinning forever.",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityNormal,
		CreatedBy:   customerID,
		CustomerID:  customerID,
		Tags:        []string{},
		Metadata:    map[string]any{},
		CreatedAt:   fixedNow.Add(-time.Hour),
	}
}

var errNoRows = pgx.ErrNoRows
