package store

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/client"
	"github.com/cozycabin/cozycabin/internal/domain"
)

var baseTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func ticketAt(id string, priority domain.TicketPriority, minutes int) domain.Ticket {
	return domain.Ticket{
		ID:        id,
		Subject:   "Ticket " + id,
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		CreatedAt: baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

func strPtr(s string) *string { return &s }

func TestList_ReplacesCollection(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(_ context.Context, query client.TicketQuery) ([]domain.Ticket, error) {
		assert.Equal(t, "unassigned", query.Assignee)
		return []domain.Ticket{ticketAt("t-2", domain.TicketPriorityLow, 2), ticketAt("t-1", domain.TicketPriorityHigh, 1)}, nil
	}
	s := NewTicketStore(backend)
	changes := s.Subscribe()

	require.NoError(t, s.List(context.Background(), client.TicketQuery{Assignee: "unassigned"}))
	state := s.Snapshot()
	assert.Len(t, state.Tickets, 2)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Equal(t, "list", (<-changes).Action)
}

func TestLoadMore_AppendsNextPage(t *testing.T) {
	backend := &fakeTicketBackend{}
	var pages []int
	backend.ListTicketsFunc = func(_ context.Context, query client.TicketQuery) ([]domain.Ticket, error) {
		assert.Equal(t, domain.TicketStatusOpen, query.Statuses[0])
		pages = append(pages, query.Page)
		if query.Page <= 1 {
			return []domain.Ticket{ticketAt("t-3", domain.TicketPriorityLow, 3), ticketAt("t-2", domain.TicketPriorityLow, 2)}, nil
		}
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 1)}, nil
	}
	backend.HasMoreFunc = func(query client.TicketQuery) bool { return query.Page <= 1 }
	s := NewTicketStore(backend)

	require.NoError(t, s.List(context.Background(), client.TicketQuery{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}, PageSize: 2}))
	state := s.Snapshot()
	assert.True(t, state.HasMore)
	assert.Equal(t, 1, state.Page)

	require.NoError(t, s.LoadMore(context.Background()))
	state = s.Snapshot()
	assert.False(t, state.HasMore)
	assert.Equal(t, 2, state.Page)
	require.Len(t, state.Tickets, 3)
	assert.Equal(t, "t-1", state.Tickets[2].ID)

	require.NoError(t, s.LoadMore(context.Background()))
	assert.Equal(t, []int{0, 2}, pages, "nothing left to load")
}

func TestList_FailureKeepsPreviousCollection(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0)}, nil
	}
	s := NewTicketStore(backend)
	require.NoError(t, s.List(context.Background(), client.TicketQuery{}))

	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return nil, &client.APIError{StatusCode: http.StatusInternalServerError, Message: "database offline"}
	}
	require.Error(t, s.List(context.Background(), client.TicketQuery{}))

	state := s.Snapshot()
	assert.Len(t, state.Tickets, 1)
	assert.Equal(t, "database offline", state.Error)
	assert.False(t, state.Loading)
}

func TestSortTicketsByPriority(t *testing.T) {
	tickets := []domain.Ticket{
		ticketAt("low", domain.TicketPriorityLow, 5),
		ticketAt("urgent-old", domain.TicketPriorityUrgent, 1),
		ticketAt("medium", domain.TicketPriorityMedium, 3),
		ticketAt("urgent-new", domain.TicketPriorityUrgent, 4),
		ticketAt("normal", domain.TicketPriorityNormal, 2),
		ticketAt("high", domain.TicketPriorityHigh, 0),
	}
	SortTicketsByPriority(tickets)

	ids := make([]string, len(tickets))
	for i, ticket := range tickets {
		ids[i] = ticket.ID
	}
	assert.Equal(t, []string{"urgent-new", "urgent-old", "high", "normal", "medium", "low"}, ids)
}

func TestCreate_ValidatesBeforeBackend(t *testing.T) {
	backend := &fakeTicketBackend{}
	s := NewTicketStore(backend)

	_, err := s.Create(context.Background(), TicketDraft{Subject: "Hi", Description: "Printer is on fire"})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "subject", validationErr.Field)

	_, err = s.Create(context.Background(), TicketDraft{Subject: "Printer", Description: "short"})
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "description", validationErr.Field)

	_, err = s.Create(context.Background(), TicketDraft{Subject: strings.Repeat("x", 101), Description: "Printer is on fire"})
	require.Error(t, err)

	assert.Zero(t, backend.calls)
	assert.NotEmpty(t, s.Snapshot().Error)
}

func TestCreate_DefaultsPriorityAndPrepends(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0)}, nil
	}
	backend.CreateTicketFunc = func(_ context.Context, req dto.CreateTicketRequest) (*domain.Ticket, error) {
		assert.Equal(t, domain.TicketPriorityLow, req.Priority)
		assert.Equal(t, "Printer broken", req.Subject)
		ticket := ticketAt("t-2", req.Priority, 1)
		return &ticket, nil
	}
	s := NewTicketStore(backend)
	require.NoError(t, s.List(context.Background(), client.TicketQuery{}))

	ticket, err := s.Create(context.Background(), TicketDraft{Subject: " Printer broken ", Description: "It prints nothing at all"})
	require.NoError(t, err)
	assert.Equal(t, "t-2", ticket.ID)
	state := s.Snapshot()
	require.Len(t, state.Tickets, 2)
	assert.Equal(t, "t-2", state.Tickets[0].ID)
}

func TestUpdate_MergesListAndSelection(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0)}, nil
	}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{Ticket: &ticket}, nil
	}
	backend.UpdateTicketFunc = func(_ context.Context, id string, req dto.UpdateTicketRequest) (*domain.Ticket, error) {
		assert.Nil(t, req.Subject, "unset fields are not sent")
		ticket := ticketAt(id, *req.Priority, 0)
		return &ticket, nil
	}
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.List(ctx, client.TicketQuery{}))
	require.NoError(t, s.SelectTicket(ctx, "t-1"))

	priority := domain.TicketPriorityUrgent
	_, err := s.Update(ctx, "t-1", dto.UpdateTicketRequest{Priority: &priority})
	require.NoError(t, err)

	state := s.Snapshot()
	assert.Equal(t, domain.TicketPriorityUrgent, state.Tickets[0].Priority)
	assert.Equal(t, domain.TicketPriorityUrgent, state.SelectedTicket.Priority)
}

func TestUpdate_FailureLeavesState(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0)}, nil
	}
	backend.UpdateTicketFunc = func(context.Context, string, dto.UpdateTicketRequest) (*domain.Ticket, error) {
		return nil, errBackend
	}
	s := NewTicketStore(backend)
	require.NoError(t, s.List(context.Background(), client.TicketQuery{}))

	priority := domain.TicketPriorityUrgent
	_, err := s.Update(context.Background(), "t-1", dto.UpdateTicketRequest{Priority: &priority})
	require.Error(t, err)
	state := s.Snapshot()
	assert.Equal(t, domain.TicketPriorityLow, state.Tickets[0].Priority)
	assert.Equal(t, errBackend.Error(), state.Error)
}

func TestAssignToSelf_SendsObservedAssignee(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		assigned := ticketAt("t-2", domain.TicketPriorityHigh, 0)
		assigned.AssignedTo = strPtr("a-9")
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0), assigned}, nil
	}
	var expectations []*string
	backend.AssignToSelfFunc = func(_ context.Context, id string, expected *string) (*domain.Ticket, error) {
		expectations = append(expectations, expected)
		if id == "t-2" {
			return nil, &client.APIError{StatusCode: http.StatusConflict, Code: "CONFLICT", Message: "ticket was assigned by someone else"}
		}
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		ticket.AssignedTo = strPtr("a-1")
		ticket.Status = domain.TicketStatusInProgress
		return &ticket, nil
	}
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.List(ctx, client.TicketQuery{}))

	ticket, err := s.AssignToSelf(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	_, err = s.AssignToSelf(ctx, "t-2")
	require.Error(t, err)

	require.Len(t, expectations, 2)
	assert.Nil(t, expectations[0])
	require.NotNil(t, expectations[1])
	assert.Equal(t, "a-9", *expectations[1])

	state := s.Snapshot()
	assert.Equal(t, "a-1", *state.Tickets[0].AssignedTo)
	assert.Equal(t, "a-9", *state.Tickets[1].AssignedTo)
	assert.Equal(t, "ticket was assigned by someone else", state.Error)
}

func TestAssignToSelf_FetchesUnloadedTicketFirst(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityHigh, 0)
		ticket.AssignedTo = strPtr("a-9")
		return &client.TicketDetail{Ticket: &ticket}, nil
	}
	var expected *string
	backend.AssignToSelfFunc = func(_ context.Context, id string, exp *string) (*domain.Ticket, error) {
		expected = exp
		ticket := ticketAt(id, domain.TicketPriorityHigh, 0)
		ticket.AssignedTo = strPtr("a-1")
		return &ticket, nil
	}
	s := NewTicketStore(backend)

	ticket, err := s.AssignToSelf(context.Background(), "t-7")
	require.NoError(t, err)
	require.NotNil(t, expected)
	assert.Equal(t, "a-9", *expected)
	assert.Equal(t, "a-1", *ticket.AssignedTo)
}

func TestAssignToSelf_LookupFailureSkipsClaim(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(context.Context, string) (*client.TicketDetail, error) {
		return nil, errBackend
	}
	s := NewTicketStore(backend)

	_, err := s.AssignToSelf(context.Background(), "t-7")
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, 1, backend.calls)
	state := s.Snapshot()
	assert.False(t, state.Loading)
	assert.Equal(t, errBackend.Error(), state.Error)
}

func TestSelectTicket_LoadsAndClears(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{
			Ticket:      &ticket,
			Comments:    []domain.Comment{{ID: "m-1"}, {ID: "m-2"}},
			Attachments: []domain.Attachment{{ID: "f-1"}},
		}, nil
	}
	s := NewTicketStore(backend)
	ctx := context.Background()

	require.NoError(t, s.SelectTicket(ctx, "t-1"))
	state := s.Snapshot()
	require.NotNil(t, state.SelectedTicket)
	assert.Len(t, state.SelectedTicketComments, 2)
	assert.Len(t, state.SelectedTicketAttachments, 1)

	require.NoError(t, s.SelectTicket(ctx, ""))
	state = s.Snapshot()
	assert.Nil(t, state.SelectedTicket)
	assert.Empty(t, state.SelectedTicketComments)
	assert.Empty(t, state.SelectedTicketAttachments)
}

func TestAddComment(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{Ticket: &ticket}, nil
	}
	backend.AddCommentFunc = func(_ context.Context, ticketID string, req dto.CreateCommentRequest) (*domain.Comment, error) {
		assert.False(t, req.IsInternal)
		return &domain.Comment{ID: "m-1", TicketID: ticketID, Content: req.Content}, nil
	}
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.SelectTicket(ctx, "t-1"))

	_, err := s.AddComment(ctx, "t-1", "   ", false)
	require.Error(t, err)
	assert.Equal(t, 1, backend.calls)

	_, err = s.AddComment(ctx, "t-1", "Have you tried turning it off?", false)
	require.NoError(t, err)
	comments := s.Snapshot().SelectedTicketComments
	require.Len(t, comments, 1)
	assert.Equal(t, "m-1", comments[0].ID)
}

func TestUploadAttachments_PartialSuccess(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{Ticket: &ticket}, nil
	}
	backend.UploadAttachmentFunc = func(_ context.Context, ticketID string, file client.File, _ *string) (*domain.Attachment, error) {
		if file.Name == "broken.bin" {
			return nil, errBackend
		}
		return &domain.Attachment{ID: "f-" + file.Name, TicketID: ticketID, FileName: file.Name}, nil
	}
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.SelectTicket(ctx, "t-1"))

	files := []client.File{
		{Name: "a.png", Body: strings.NewReader("a")},
		{Name: "broken.bin", Body: strings.NewReader("b")},
		{Name: "c.txt", Body: strings.NewReader("c")},
	}
	uploaded, err := s.UploadAttachments(ctx, "t-1", files, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
	assert.Contains(t, err.Error(), "broken.bin")
	assert.Len(t, uploaded, 2)

	state := s.Snapshot()
	assert.Len(t, state.SelectedTicketAttachments, 2)
	assert.False(t, state.Loading)
}

func TestDeleteAttachment(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{Ticket: &ticket, Attachments: []domain.Attachment{{ID: "f-1"}, {ID: "f-2"}}}, nil
	}
	deleteErr := error(&client.APIError{StatusCode: http.StatusBadGateway, Message: "storage unavailable"})
	backend.DeleteAttachmentFunc = func(context.Context, string) error { return deleteErr }
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.SelectTicket(ctx, "t-1"))

	require.Error(t, s.DeleteAttachment(ctx, "f-1"))
	assert.Len(t, s.Snapshot().SelectedTicketAttachments, 2, "record kept when storage fails")

	deleteErr = nil
	require.NoError(t, s.DeleteAttachment(ctx, "f-1"))
	attachments := s.Snapshot().SelectedTicketAttachments
	require.Len(t, attachments, 1)
	assert.Equal(t, "f-2", attachments[0].ID)
}

func TestDelete_RemovesTicketAndSelection(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0), ticketAt("t-2", domain.TicketPriorityLow, 1)}, nil
	}
	backend.GetTicketFunc = func(_ context.Context, id string) (*client.TicketDetail, error) {
		ticket := ticketAt(id, domain.TicketPriorityLow, 0)
		return &client.TicketDetail{Ticket: &ticket}, nil
	}
	backend.DeleteTicketFunc = func(context.Context, string) error { return nil }
	s := NewTicketStore(backend)
	ctx := context.Background()
	require.NoError(t, s.List(ctx, client.TicketQuery{}))
	require.NoError(t, s.SelectTicket(ctx, "t-1"))

	require.NoError(t, s.Delete(ctx, "t-1"))
	state := s.Snapshot()
	require.Len(t, state.Tickets, 1)
	assert.Equal(t, "t-2", state.Tickets[0].ID)
	assert.Nil(t, state.SelectedTicket)
}

func TestSnapshot_IsACopy(t *testing.T) {
	backend := &fakeTicketBackend{}
	backend.ListTicketsFunc = func(context.Context, client.TicketQuery) ([]domain.Ticket, error) {
		return []domain.Ticket{ticketAt("t-1", domain.TicketPriorityLow, 0)}, nil
	}
	s := NewTicketStore(backend)
	require.NoError(t, s.List(context.Background(), client.TicketQuery{}))

	snapshot := s.Snapshot()
	snapshot.Tickets[0].Subject = "mutated"
	assert.Equal(t, "Ticket t-1", s.Snapshot().Tickets[0].Subject)
}
