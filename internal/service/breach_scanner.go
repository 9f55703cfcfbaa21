package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// ScanResult reports how many tickets breached per dimension. For a dry run
// the counts are the selected candidates; otherwise they are the rows the
// guarded write actually marked.
type ScanResult struct {
	FirstResponseBreaches int
	ResolutionBreaches    int
	DryRun                bool
	ScannedAt             time.Time
}

func (r *ScanResult) set(dim domain.SLADimension, n int) {
	if dim == domain.SLAFirstResponse {
		r.FirstResponseBreaches = n
	} else {
		r.ResolutionBreaches = n
	}
}

// BreachScanner marks tickets whose SLA deadlines elapsed unmet. It keeps no
// state between runs; the guard predicate alone makes repeated runs safe.
type BreachScanner struct {
	store   repository.Store
	events  publisher
	logger  *zap.Logger
	metrics *observability.Metrics
}

// BreachScannerDependencies bundles collaborators for the scanner.
type BreachScannerDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        Clock
}

// NewBreachScanner constructs the scanner.
func NewBreachScanner(deps BreachScannerDependencies) *BreachScanner {
	logger := loggerOrNop(deps.Logger)
	return &BreachScanner{
		store:   deps.Store,
		events:  publisher{dispatcher: deps.Dispatcher, logger: logger, now: clockOrDefault(deps.Now)},
		logger:  logger,
		metrics: deps.Metrics,
	}
}

// Scan runs one pass over both SLA dimensions at now. Each dimension is one
// candidate query plus one guarded batch write; a storage failure in one
// dimension does not stop the other, and the joined error marks the run
// as failed.
func (s *BreachScanner) Scan(ctx context.Context, now time.Time, dryRun bool) (ScanResult, error) {
	started := time.Now()
	result := ScanResult{DryRun: dryRun, ScannedAt: now}
	var errs []error

	for _, dim := range domain.SLADimensions {
		count, err := s.scanDimension(ctx, dim, now, dryRun)
		if err != nil {
			errs = append(errs, &domain.ScanStorageError{Dimension: dim, Err: err})
			s.logger.Error("sla scan dimension failed", zap.String("dimension", string(dim)), zap.Error(err))
			continue
		}
		result.set(dim, count)
	}

	err := errors.Join(errs...)
	s.metrics.RecordScan(result.FirstResponseBreaches, result.ResolutionBreaches, dryRun, err != nil, time.Since(started))
	s.logger.Info("sla scan finished",
		zap.Time("now", now),
		zap.Bool("dry_run", dryRun),
		zap.Int("first_response_breaches", result.FirstResponseBreaches),
		zap.Int("resolution_breaches", result.ResolutionBreaches),
		zap.Bool("failed", err != nil))
	return result, err
}

func (s *BreachScanner) scanDimension(ctx context.Context, dim domain.SLADimension, now time.Time, dryRun bool) (int, error) {
	tickets := s.store.Repositories().Tickets
	candidates, err := tickets.FindBreachCandidates(ctx, dim, now)
	if err != nil {
		return 0, err
	}
	if dryRun || len(candidates) == 0 {
		return len(candidates), nil
	}

	ids := make([]string, len(candidates))
	byID := make(map[string]domain.Ticket, len(candidates))
	for i, ticket := range candidates {
		ids[i] = ticket.ID
		byID[ticket.ID] = ticket
	}
	marked, err := tickets.MarkBreached(ctx, dim, now, ids)
	if err != nil {
		return 0, err
	}
	if skipped := len(candidates) - len(marked); skipped > 0 {
		s.logger.Info("sla candidates no longer eligible at write time",
			zap.String("dimension", string(dim)), zap.Int("skipped", skipped))
	}

	breachEvents := make([]events.Event, 0, len(marked))
	for _, id := range marked {
		ticket := byID[id]
		var due time.Time
		if d := ticket.DueAt(dim); d != nil {
			due = *d
		}
		breachEvents = append(breachEvents, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketSLABreached,
			TicketID:  id,
			Timestamp: now,
			Payload: events.TicketSLABreachedPayload{
				Dimension:  dim,
				Priority:   ticket.Priority,
				DueAt:      due,
				BreachedAt: now,
			},
		})
	}
	s.events.publish(ctx, domain.SystemActor, breachEvents...)
	return len(marked), nil
}
