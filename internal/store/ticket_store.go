package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/client"
	"github.com/cozycabin/cozycabin/internal/domain"
)

// TicketBackend is the part of the API the ticket store uses.
type TicketBackend interface {
	ListTickets(ctx context.Context, query client.TicketQuery) (*client.TicketPage, error)
	CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*client.TicketDetail, error)
	UpdateTicket(ctx context.Context, id string, req dto.UpdateTicketRequest) (*domain.Ticket, error)
	AssignToSelf(ctx context.Context, id string, expectedAssignee *string) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	AddComment(ctx context.Context, ticketID string, req dto.CreateCommentRequest) (*domain.Comment, error)
	EditComment(ctx context.Context, id, content string) (*domain.Comment, error)
	UploadAttachment(ctx context.Context, ticketID string, file client.File, commentID *string) (*domain.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

// TicketState is a snapshot of the ticket store.
type TicketState struct {
	Tickets                   []domain.Ticket
	SelectedTicket            *domain.Ticket
	SelectedTicketComments    []domain.Comment
	SelectedTicketAttachments []domain.Attachment
	// Page is the last page loaded. HasMore reports that the server holds
	// more tickets for the same query.
	Page                      int
	HasMore                   bool
	Loading                   bool
	Error                     string
}

// TicketDraft is the input of Create.
type TicketDraft struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
	CustomerID  *string
}

// TicketStore holds the ticket list and the selected ticket thread.
type TicketStore struct {
	broadcaster

	backend TicketBackend

	mu        sync.Mutex
	state     TicketState
	inflight  int
	lastQuery client.TicketQuery
}

// NewTicketStore creates an empty store.
func NewTicketStore(backend TicketBackend) *TicketStore {
	return &TicketStore{backend: backend}
}

// Snapshot returns a copy of the current state.
func (s *TicketStore) Snapshot() TicketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state
	snapshot.Tickets = slices.Clone(s.state.Tickets)
	snapshot.SelectedTicketComments = slices.Clone(s.state.SelectedTicketComments)
	snapshot.SelectedTicketAttachments = slices.Clone(s.state.SelectedTicketAttachments)
	if s.state.SelectedTicket != nil {
		selected := *s.state.SelectedTicket
		snapshot.SelectedTicket = &selected
	}
	return snapshot
}

// begin marks a backend call as running and clears the last error.
func (s *TicketStore) begin() {
	s.mu.Lock()
	s.inflight++
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
}

// finish ends a backend call, applying mutate on success or recording err.
func (s *TicketStore) finish(action, id string, err error, mutate func(*TicketState)) error {
	s.mu.Lock()
	s.inflight--
	s.state.Loading = s.inflight > 0
	if err != nil {
		s.state.Error = errorText(err)
	} else if mutate != nil {
		mutate(&s.state)
	}
	s.mu.Unlock()
	s.notify(action, id)
	return err
}

func (s *TicketStore) fail(action string, err error) error {
	s.mu.Lock()
	s.state.Error = errorText(err)
	s.mu.Unlock()
	s.notify(action, "")
	return err
}

// List replaces the collection with the tickets matching query. On failure
// the previous collection is kept.
func (s *TicketStore) List(ctx context.Context, query client.TicketQuery) error {
	s.begin()
	page, err := s.backend.ListTickets(ctx, query)
	return s.finish("list", "", err, func(state *TicketState) {
		s.lastQuery = query
		state.Tickets = page.Tickets
		state.Page = page.Page
		state.HasMore = page.HasMore
	})
}

// LoadMore appends the next page of the last List query. It does nothing
// when the server reported no further tickets.
func (s *TicketStore) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.HasMore {
		s.mu.Unlock()
		return nil
	}
	query := s.lastQuery
	query.Page = s.state.Page + 1
	s.mu.Unlock()

	s.begin()
	page, err := s.backend.ListTickets(ctx, query)
	return s.finish("list", "", err, func(state *TicketState) {
		state.Tickets = append(state.Tickets, page.Tickets...)
		state.Page = page.Page
		state.HasMore = page.HasMore
	})
}

// SortByPriority orders the loaded tickets most severe first, newest first
// within a priority.
func (s *TicketStore) SortByPriority() {
	s.mu.Lock()
	SortTicketsByPriority(s.state.Tickets)
	s.mu.Unlock()
	s.notify("sort", "")
}

// SortTicketsByPriority sorts tickets in place.
func SortTicketsByPriority(tickets []domain.Ticket) {
	slices.SortStableFunc(tickets, func(a, b domain.Ticket) int {
		if diff := a.Priority.Rank() - b.Priority.Rank(); diff != 0 {
			return diff
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Create files a ticket and prepends it to the collection.
func (s *TicketStore) Create(ctx context.Context, draft TicketDraft) (*domain.Ticket, error) {
	if err := validateDraft(draft); err != nil {
		return nil, s.fail("create", err)
	}
	priority := draft.Priority
	if priority == "" {
		priority = domain.DefaultTicketPriority
	}
	s.begin()
	ticket, err := s.backend.CreateTicket(ctx, dto.CreateTicketRequest{
		Subject:     strings.TrimSpace(draft.Subject),
		Description: strings.TrimSpace(draft.Description),
		Priority:    priority,
		Tags:        draft.Tags,
		CustomerID:  draft.CustomerID,
	})
	id := ""
	if ticket != nil {
		id = ticket.ID
	}
	if err := s.finish("create", id, err, func(state *TicketState) {
		state.Tickets = append([]domain.Ticket{*ticket}, state.Tickets...)
	}); err != nil {
		return nil, err
	}
	return ticket, nil
}

func validateDraft(draft TicketDraft) error {
	subject := utf8.RuneCountInString(strings.TrimSpace(draft.Subject))
	if subject < domain.SubjectMinLength || subject > domain.SubjectMaxLength {
		return &ValidationError{Field: "subject", Message: fmt.Sprintf("must be %d-%d characters", domain.SubjectMinLength, domain.SubjectMaxLength)}
	}
	description := utf8.RuneCountInString(strings.TrimSpace(draft.Description))
	if description < domain.DescriptionMinLength || description > domain.DescriptionMaxLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be %d-%d characters", domain.DescriptionMinLength, domain.DescriptionMaxLength)}
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "is not a known priority"}
	}
	return nil
}

// Update sends only the fields set in patch and merges the result locally.
func (s *TicketStore) Update(ctx context.Context, id string, patch dto.UpdateTicketRequest) (*domain.Ticket, error) {
	s.begin()
	ticket, err := s.backend.UpdateTicket(ctx, id, patch)
	if err := s.finish("update", id, err, func(state *TicketState) {
		state.replaceTicket(*ticket)
	}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// AssignToSelf claims the ticket for the current principal. The backend
// rejects the claim when the assignee differs from the one seen here.
func (s *TicketStore) AssignToSelf(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	expected, known := s.state.knownAssignee(id)
	s.mu.Unlock()

	s.begin()
	if !known {
		detail, err := s.backend.GetTicket(ctx, id)
		if err != nil {
			return nil, s.finish("assign", id, err, nil)
		}
		if detail.Ticket != nil {
			expected = cloneString(detail.Ticket.AssignedTo)
		}
	}
	ticket, err := s.backend.AssignToSelf(ctx, id, expected)
	if err := s.finish("assign", id, err, func(state *TicketState) {
		state.replaceTicket(*ticket)
	}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// SelectTicket loads a ticket with its comments and attachments. An empty
// id clears the selection.
func (s *TicketStore) SelectTicket(ctx context.Context, id string) error {
	if id == "" {
		s.mu.Lock()
		s.state.SelectedTicket = nil
		s.state.SelectedTicketComments = nil
		s.state.SelectedTicketAttachments = nil
		s.mu.Unlock()
		s.notify("select", "")
		return nil
	}
	s.begin()
	detail, err := s.backend.GetTicket(ctx, id)
	return s.finish("select", id, err, func(state *TicketState) {
		state.SelectedTicket = detail.Ticket
		state.SelectedTicketComments = detail.Comments
		state.SelectedTicketAttachments = detail.Attachments
	})
}

// AddComment posts a comment and appends it to the selected thread.
func (s *TicketStore) AddComment(ctx context.Context, ticketID, content string, internal bool) (*domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, s.fail("comment", &ValidationError{Field: "content", Message: "is required"})
	}
	s.begin()
	comment, err := s.backend.AddComment(ctx, ticketID, dto.CreateCommentRequest{Content: content, IsInternal: internal})
	if err := s.finish("comment", ticketID, err, func(state *TicketState) {
		if state.isSelected(ticketID) {
			state.SelectedTicketComments = append(state.SelectedTicketComments, *comment)
		}
	}); err != nil {
		return nil, err
	}
	return comment, nil
}

// EditComment changes the content of the caller's own comment.
func (s *TicketStore) EditComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, s.fail("edit_comment", &ValidationError{Field: "content", Message: "is required"})
	}
	s.begin()
	comment, err := s.backend.EditComment(ctx, id, content)
	if err := s.finish("edit_comment", id, err, func(state *TicketState) {
		for i := range state.SelectedTicketComments {
			if state.SelectedTicketComments[i].ID == comment.ID {
				state.SelectedTicketComments[i] = *comment
			}
		}
	}); err != nil {
		return nil, err
	}
	return comment, nil
}

// UploadAttachment uploads one file to a ticket.
func (s *TicketStore) UploadAttachment(ctx context.Context, ticketID string, file client.File, commentID *string) (*domain.Attachment, error) {
	s.begin()
	attachment, err := s.backend.UploadAttachment(ctx, ticketID, file, commentID)
	if err := s.finish("upload", ticketID, err, func(state *TicketState) {
		if state.isSelected(ticketID) {
			state.SelectedTicketAttachments = append(state.SelectedTicketAttachments, *attachment)
		}
	}); err != nil {
		return nil, err
	}
	return attachment, nil
}

// UploadAttachments uploads files concurrently. Each upload stands alone;
// the successful ones are returned alongside the joined errors.
func (s *TicketStore) UploadAttachments(ctx context.Context, ticketID string, files []client.File, commentID *string) ([]domain.Attachment, error) {
	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
		uploaded []domain.Attachment
		errs     []error
	)
	for _, file := range files {
		wg.Add(1)
		go func(file client.File) {
			defer wg.Done()
			attachment, err := s.UploadAttachment(ctx, ticketID, file, commentID)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", file.Name, err))
				return
			}
			uploaded = append(uploaded, *attachment)
		}(file)
	}
	wg.Wait()
	return uploaded, errors.Join(errs...)
}

// DeleteAttachment removes the stored file and its record.
func (s *TicketStore) DeleteAttachment(ctx context.Context, id string) error {
	s.begin()
	err := s.backend.DeleteAttachment(ctx, id)
	return s.finish("delete_attachment", id, err, func(state *TicketState) {
		state.SelectedTicketAttachments = slices.DeleteFunc(state.SelectedTicketAttachments, func(a domain.Attachment) bool {
			return a.ID == id
		})
	})
}

// Delete removes a ticket permanently.
func (s *TicketStore) Delete(ctx context.Context, id string) error {
	s.begin()
	err := s.backend.DeleteTicket(ctx, id)
	return s.finish("delete", id, err, func(state *TicketState) {
		state.Tickets = slices.DeleteFunc(state.Tickets, func(t domain.Ticket) bool { return t.ID == id })
		if state.isSelected(id) {
			state.SelectedTicket = nil
			state.SelectedTicketComments = nil
			state.SelectedTicketAttachments = nil
		}
	})
}

func (state *TicketState) isSelected(id string) bool {
	return state.SelectedTicket != nil && state.SelectedTicket.ID == id
}

func (state *TicketState) replaceTicket(ticket domain.Ticket) {
	for i := range state.Tickets {
		if state.Tickets[i].ID == ticket.ID {
			state.Tickets[i] = ticket
		}
	}
	if state.isSelected(ticket.ID) {
		selected := ticket
		state.SelectedTicket = &selected
	}
}

// knownAssignee is the assignee last observed for id, nil when unassigned
// or unknown.
// knownAssignee returns the last assignee seen for id and whether the
// ticket is loaded at all.
func (state *TicketState) knownAssignee(id string) (*string, bool) {
	if state.isSelected(id) {
		return cloneString(state.SelectedTicket.AssignedTo), true
	}
	for i := range state.Tickets {
		if state.Tickets[i].ID == id {
			return cloneString(state.Tickets[i].AssignedTo), true
		}
	}
	return nil, false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
