package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// SLAWindows are the two durations a policy grants from ticket creation.
type SLAWindows struct {
	PolicyID      string
	FirstResponse time.Duration
	Resolution    time.Duration
}

// Deadlines returns the due timestamps measured from createdAt.
func (w SLAWindows) Deadlines(createdAt time.Time) (firstResponseDue, resolutionDue time.Time) {
	return createdAt.Add(w.FirstResponse), createdAt.Add(w.Resolution)
}

// ResolveFromSnapshot picks the windows for priority and tier from a policy
// snapshot. A tier specific policy wins over the tier-less one. More than one
// active policy for the chosen key is an error, never a silent pick.
func ResolveFromSnapshot(policies []domain.SLAPolicy, priority domain.TicketPriority, clientTier string) (SLAWindows, error) {
	if !priority.Valid() {
		return SLAWindows{}, &domain.PolicyNotFoundError{Priority: priority, ClientTier: clientTier}
	}

	tiers := []string{""}
	if clientTier != "" {
		tiers = []string{clientTier, ""}
	}
	for _, tier := range tiers {
		var matches []domain.SLAPolicy
		for _, policy := range policies {
			if policy.Active && policy.Priority == priority && policy.ClientTier == tier {
				matches = append(matches, policy)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return SLAWindows{
				PolicyID:      matches[0].ID,
				FirstResponse: matches[0].FirstResponseWindow(),
				Resolution:    matches[0].ResolutionWindow(),
			}, nil
		default:
			return SLAWindows{}, fmt.Errorf("%w: %d active policies for priority %q tier %q",
				domain.ErrAmbiguousPolicy, len(matches), priority, tier)
		}
	}
	return SLAWindows{}, &domain.PolicyNotFoundError{Priority: priority, ClientTier: clientTier}
}

// ResolveSLA reads the active policy snapshot and resolves it.
func ResolveSLA(ctx context.Context, policies repository.SLAPolicyRepository, priority domain.TicketPriority, clientTier string) (SLAWindows, error) {
	snapshot, err := policies.ListActive(ctx)
	if err != nil {
		return SLAWindows{}, fmt.Errorf("load sla policies: %w", err)
	}
	return ResolveFromSnapshot(snapshot, priority, clientTier)
}

// applyDeadlines recomputes due timestamps from the ticket's creation time.
// A dimension already met or breached keeps its recorded deadline.
func applyDeadlines(ticket *domain.Ticket, windows SLAWindows) {
	firstResponseDue, resolutionDue := windows.Deadlines(ticket.CreatedAt)
	if !ticket.Frozen(domain.SLAFirstResponse) && ticket.FirstResponseBreachedAt == nil {
		ticket.FirstResponseDueAt = timePtr(firstResponseDue)
	}
	if !ticket.Frozen(domain.SLAResolution) && ticket.ResolutionBreachedAt == nil {
		ticket.ResolutionDueAt = timePtr(resolutionDue)
	}
}
