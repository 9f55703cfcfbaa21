package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// SLAPolicyRepository reads and seeds SLA policies.
type SLAPolicyRepository interface {
	List(ctx context.Context) ([]domain.SLAPolicy, error)
	ListActive(ctx context.Context) ([]domain.SLAPolicy, error)
	// FindActive returns every active policy for the exact priority and tier.
	FindActive(ctx context.Context, priority domain.TicketPriority, clientTier string) ([]domain.SLAPolicy, error)
	// Upsert updates the policy keyed by priority and tier, or inserts it.
	Upsert(ctx context.Context, policy *domain.SLAPolicy) error
}

const policyColumns = `id, name, priority, client_tier, first_response_minutes, resolution_minutes, active, created_at, updated_at`

type slaPolicyRepository struct {
	db DBTX
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(db DBTX) SLAPolicyRepository {
	return &slaPolicyRepository{db: db}
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	return r.query(ctx, `SELECT `+policyColumns+` FROM sla_policies ORDER BY priority, client_tier`)
}

func (r *slaPolicyRepository) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	return r.query(ctx, `SELECT `+policyColumns+` FROM sla_policies WHERE active ORDER BY priority, client_tier`)
}

func (r *slaPolicyRepository) FindActive(ctx context.Context, priority domain.TicketPriority, clientTier string) ([]domain.SLAPolicy, error) {
	return r.query(ctx,
		`SELECT `+policyColumns+` FROM sla_policies WHERE active AND priority=$1 AND client_tier=$2`,
		string(priority), clientTier)
}

func (r *slaPolicyRepository) Upsert(ctx context.Context, policy *domain.SLAPolicy) error {
	const update = `
        UPDATE sla_policies SET name=$1, first_response_minutes=$2, resolution_minutes=$3, active=$4, updated_at=NOW()
        WHERE priority=$5 AND client_tier=$6
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, update,
		policy.Name,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.Active,
		string(policy.Priority),
		policy.ClientTier,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	const insert = `
        INSERT INTO sla_policies (id, name, priority, client_tier, first_response_minutes, resolution_minutes, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	return r.db.QueryRow(ctx, insert,
		policy.ID,
		policy.Name,
		string(policy.Priority),
		policy.ClientTier,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.Active,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) query(ctx context.Context, query string, args ...any) ([]domain.SLAPolicy, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var (
			policy   domain.SLAPolicy
			priority string
		)
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&priority,
			&policy.ClientTier,
			&policy.FirstResponseMinutes,
			&policy.ResolutionMinutes,
			&policy.Active,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		policy.Priority = domain.TicketPriority(priority)
		result = append(result, policy)
	}
	return result, rows.Err()
}
