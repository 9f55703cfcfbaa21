package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketHistoryRepository stores the append-only audit trail.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	// ListByTicket returns entries oldest first, limited to changeTypes
	// when any are given.
	ListByTicket(ctx context.Context, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	db DBTX
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(db DBTX) TicketHistoryRepository {
	return &ticketHistoryRepository{db: db}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		history.ID,
		history.TicketID,
		string(history.ChangedByType),
		history.ChangedByID,
		string(history.ChangeType),
		history.OldValue,
		history.NewValue,
		history.CreatedAt,
	)
	return err
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	var (
		sb   strings.Builder
		args = []any{ticketID}
	)
	sb.WriteString(`SELECT id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id = $1`)
	if len(changeTypes) > 0 {
		types := make([]string, 0, len(changeTypes))
		for _, changeType := range changeTypes {
			types = append(types, string(changeType))
		}
		args = append(args, types)
		sb.WriteString(fmt.Sprintf(" AND change_type = ANY($%d)", len(args)))
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history       domain.TicketHistory
			changedByType string
			changeType    string
		)
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&changedByType,
			&history.ChangedByID,
			&changeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		history.ChangedByType = domain.SubjectType(changedByType)
		history.ChangeType = domain.TicketChangeType(changeType)
		result = append(result, history)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ticket history: %w", err)
	}
	return result, nil
}
