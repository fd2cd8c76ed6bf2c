package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// ErrAssigneeChanged is returned when a conditional assignment finds a
// different assignee than the caller expected.
var ErrAssigneeChanged = errors.New("ticket assignee changed")

// TicketFilter captures list parameters. All set fields are ANDed.
type TicketFilter struct {
	CustomerID      *string
	AssigneeID      *string
	Unassigned      bool
	Statuses        []domain.TicketStatus
	ExcludeStatuses []domain.TicketStatus
	Priorities      []domain.TicketPriority
	SearchTerm      *string
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateFields(ctx context.Context, ticket *domain.Ticket, changes TicketChanges) error
	AssignIfUnchanged(ctx context.Context, ticket *domain.Ticket, expectedAssignee *string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

// TicketChanges names the columns UpdateFields writes. Nil fields keep the
// stored value. Metadata keys are merged into the stored document.
type TicketChanges struct {
	Subject       *string
	Description   *string
	Status        *domain.TicketStatus
	ClosedAt      *time.Time // used with Status
	Priority      *domain.TicketPriority
	AssignedTo    *string
	ClearAssignee bool
	Tags          []string
	Metadata      map[string]any
}

func (c TicketChanges) empty() bool {
	return c.Subject == nil && c.Description == nil && c.Status == nil && c.Priority == nil &&
		c.AssignedTo == nil && !c.ClearAssignee && c.Tags == nil && c.Metadata == nil
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, subject, description, status, priority, created_by, customer_id, assigned_to,
               tags, metadata, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (subject, description, status, priority, created_by, customer_id, assigned_to, tags, metadata, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.CreatedBy,
		ticket.CustomerID,
		ticket.AssignedTo,
		ticket.Tags,
		ticket.Metadata,
		ticket.ClosedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// UpdateFields writes only the changed columns and reloads ticket from the
// stored row, so concurrent edits to other fields survive.
func (r *ticketRepository) UpdateFields(ctx context.Context, ticket *domain.Ticket, changes TicketChanges) error {
	if changes.empty() {
		stored, err := r.GetByID(ctx, ticket.ID)
		if err != nil {
			return err
		}
		*ticket = *stored
		return nil
	}
	query, args := buildTicketUpdate(ticket.ID, changes)
	stored, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return err
	}
	*ticket = *stored
	return nil
}

func buildTicketUpdate(id string, changes TicketChanges) (string, []any) {
	sets := []string{}
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if changes.Subject != nil {
		sets = append(sets, "subject="+next(*changes.Subject))
	}
	if changes.Description != nil {
		sets = append(sets, "description="+next(*changes.Description))
	}
	if changes.Status != nil {
		status := next(string(*changes.Status))
		closedAt := next(changes.ClosedAt)
		sets = append(sets,
			fmt.Sprintf("status=%s::text", status),
			fmt.Sprintf("closed_at=CASE WHEN %s::text = 'closed' THEN COALESCE(closed_at, %s::timestamptz) ELSE NULL END", status, closedAt))
	}
	if changes.Priority != nil {
		sets = append(sets, "priority="+next(string(*changes.Priority)))
	}
	if changes.ClearAssignee {
		sets = append(sets, "assigned_to=NULL")
	} else if changes.AssignedTo != nil {
		sets = append(sets, fmt.Sprintf("assigned_to=%s::uuid", next(*changes.AssignedTo)))
	}
	if changes.Tags != nil {
		sets = append(sets, fmt.Sprintf("tags=%s::text[]", next(changes.Tags)))
	}
	if changes.Metadata != nil {
		sets = append(sets, fmt.Sprintf("metadata=metadata || %s::jsonb", next(changes.Metadata)))
	}
	sets = append(sets, "updated_at=NOW()")

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=%s RETURNING %s`,
		strings.Join(sets, ", "), next(id), ticketColumns)
	return query, args
}

// AssignIfUnchanged writes assignee and status only while the stored
// assignee still equals expectedAssignee (NULL included).
func (r *ticketRepository) AssignIfUnchanged(ctx context.Context, ticket *domain.Ticket, expectedAssignee *string) error {
	const query = `
        UPDATE tickets SET assigned_to=$1, status=$2, closed_at=$3, updated_at=NOW()
        WHERE id=$4 AND assigned_to IS NOT DISTINCT FROM $5::uuid
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.AssignedTo,
		ticket.Status,
		ticket.ClosedAt,
		ticket.ID,
		expectedAssignee,
	).Scan(&ticket.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrAssigneeChanged
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query, args := buildTicketListQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func buildTicketListQuery(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	} else if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ExcludeStatuses) > 0 {
		placeholders := make([]string, len(filter.ExcludeStatuses))
		for i, status := range filter.ExcludeStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status NOT IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filter.SearchTerm))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(subject ILIKE %s OR description ILIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)
	return query, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedBy,
		&ticket.CustomerID,
		&ticket.AssignedTo,
		&ticket.Tags,
		&ticket.Metadata,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if ticket.Metadata == nil {
		ticket.Metadata = map[string]any{}
	}
	return &ticket, nil
}
