package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	ClientID   *string
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Breached   *domain.SLADimension
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// FindBreachCandidates selects tickets whose deadline for dim has elapsed
	// at now while the milestone is neither met nor marked.
	FindBreachCandidates(ctx context.Context, dim domain.SLADimension, now time.Time) ([]domain.Ticket, error)
	// MarkBreached stamps breach time on the given ids, re-checking the
	// candidate predicate per row. It returns the ids actually marked.
	MarkBreached(ctx context.Context, dim domain.SLADimension, now time.Time, ids []string) ([]string, error)
}

const ticketColumns = `id, code, client_id, client_tier, assignee_id, title, description, status, priority,
               first_response_due_at, first_response_at, first_response_breached_at,
               resolution_due_at, resolved_at, resolution_breached_at,
               created_at, updated_at, last_activity_at, closed_at`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.Code,
		ticket.ClientID,
		ticket.ClientTier,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.FirstResponseDueAt,
		ticket.FirstResponseAt,
		ticket.FirstResponseBreachedAt,
		ticket.ResolutionDueAt,
		ticket.ResolvedAt,
		ticket.ResolutionBreachedAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.LastActivityAt,
		ticket.ClosedAt,
	)
	return err
}

// Update writes every mutable column. Breach columns are written only while
// still unset so a concurrent scan mark is never cleared.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, title=$2, description=$3, status=$4, priority=$5,
            first_response_due_at=$6, first_response_at=$7,
            first_response_breached_at=COALESCE(first_response_breached_at, $8),
            resolution_due_at=$9, resolved_at=$10,
            resolution_breached_at=COALESCE(resolution_breached_at, $11),
            updated_at=$12, last_activity_at=$13, closed_at=$14
        WHERE id=$15`
	cmd, err := r.db.Exec(ctx, query,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.FirstResponseDueAt,
		ticket.FirstResponseAt,
		ticket.FirstResponseBreachedAt,
		ticket.ResolutionDueAt,
		ticket.ResolvedAt,
		ticket.ResolutionBreachedAt,
		ticket.UpdatedAt,
		ticket.LastActivityAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code=$1`, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		priorities := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			priorities[i] = string(p)
		}
		args = append(args, priorities)
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if filter.Breached != nil {
		cols := columnsFor(*filter.Breached)
		clauses = append(clauses, cols.breached+" IS NOT NULL", "status <> 'cancelled'")
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) FindBreachCandidates(ctx context.Context, dim domain.SLADimension, now time.Time) ([]domain.Ticket, error) {
	cols := columnsFor(dim)
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE status = ANY($1) AND %s IS NOT NULL AND %s <= $2 AND %s IS NULL AND %s IS NULL
        ORDER BY %s ASC`,
		ticketColumns, cols.due, cols.due, cols.met, cols.breached, cols.due)
	rows, err := r.db.Query(ctx, query, statusStrings(domain.ActiveTicketStatuses), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) MarkBreached(ctx context.Context, dim domain.SLADimension, now time.Time, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cols := columnsFor(dim)
	query := fmt.Sprintf(`
        UPDATE tickets SET %s = $1, updated_at = $1
        WHERE id = ANY($2) AND status = ANY($3) AND %s IS NOT NULL AND %s <= $1 AND %s IS NULL AND %s IS NULL
        RETURNING id`,
		cols.breached, cols.due, cols.due, cols.met, cols.breached)
	rows, err := r.db.Query(ctx, query, now, ids, statusStrings(domain.ActiveTicketStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		marked = append(marked, id)
	}
	return marked, rows.Err()
}

type slaColumns struct {
	due      string
	met      string
	breached string
}

func columnsFor(dim domain.SLADimension) slaColumns {
	if dim == domain.SLAFirstResponse {
		return slaColumns{due: "first_response_due_at", met: "first_response_at", breached: "first_response_breached_at"}
	}
	return slaColumns{due: "resolution_due_at", met: "resolved_at", breached: "resolution_breached_at"}
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Page sizes applied to ticket listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		status   string
		priority string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.ClientID,
		&ticket.ClientTier,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&priority,
		&ticket.FirstResponseDueAt,
		&ticket.FirstResponseAt,
		&ticket.FirstResponseBreachedAt,
		&ticket.ResolutionDueAt,
		&ticket.ResolvedAt,
		&ticket.ResolutionBreachedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LastActivityAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
