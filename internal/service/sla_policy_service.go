package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// SLAPolicyService exposes the read-only policy listing and the seed sync.
type SLAPolicyService struct {
	store        repository.Store
	capabilities CapabilityChecker
	logger       *zap.Logger
}

// NewSLAPolicyService constructs the service.
func NewSLAPolicyService(store repository.Store, capabilities CapabilityChecker, logger *zap.Logger) *SLAPolicyService {
	return &SLAPolicyService{store: store, capabilities: capabilities, logger: loggerOrNop(logger)}
}

// ListActive returns the active policies.
func (s *SLAPolicyService) ListActive(ctx context.Context, actor domain.Actor) ([]domain.SLAPolicy, error) {
	if s.capabilities == nil || !s.capabilities.HasCapability(actor, domain.CapabilityViewPolicies) {
		return nil, apperrors.NewForbidden("listing sla policies requires the " + string(domain.CapabilityViewPolicies) + " capability")
	}
	return s.store.Repositories().Policies.ListActive(ctx)
}

// Sync upserts seed policies in one transaction and verifies that every
// priority still resolves afterwards.
func (s *SLAPolicyService) Sync(ctx context.Context, seeds []domain.SLAPolicy) ([]domain.SLAPolicy, error) {
	var synced []domain.SLAPolicy
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		for i := range seeds {
			policy := seeds[i]
			if err := repos.Policies.Upsert(ctx, &policy); err != nil {
				return fmt.Errorf("upsert policy %s/%q: %w", policy.Priority, policy.ClientTier, err)
			}
			synced = append(synced, policy)
		}
		active, err := repos.Policies.ListActive(ctx)
		if err != nil {
			return err
		}
		for _, priority := range []domain.TicketPriority{
			domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent,
		} {
			if _, err := ResolveFromSnapshot(active, priority, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sla policies synced", zap.Int("count", len(synced)))
	return synced, nil
}
