package service

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// allowedTransitions lists the regular edges of the ticket lifecycle. The
// forced close edge is handled separately in canTransition.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew: {
		domain.TicketStatusOpen, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusOpen: {
		domain.TicketStatusPendingCustomer, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusPendingCustomer: {
		domain.TicketStatusOpen, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusPendingInternal: {
		domain.TicketStatusPendingCustomer, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusOnHold: {
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusResolved:  {domain.TicketStatusClosed},
	domain.TicketStatusClosed:    {},
	domain.TicketStatusCancelled: {},
}

// TransitionResult describes an applied transition.
type TransitionResult struct {
	From    domain.TicketStatus
	To      domain.TicketStatus
	Changed bool
	Forced  bool
}

func canTransition(from, to domain.TicketStatus, force bool) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return force && to == domain.TicketStatusClosed && from.Valid() && !from.IsTerminal()
}

// ApplyTransition validates the move from the ticket's current status to `to`
// and applies it with all side effects. On error the ticket is not touched.
// A same-state request is a no-op apart from last_activity_at.
func ApplyTransition(ticket *domain.Ticket, to domain.TicketStatus, force bool, now time.Time) (TransitionResult, error) {
	from := ticket.Status
	result := TransitionResult{From: from, To: to}

	if from == to && to.Valid() {
		ticket.LastActivityAt = now
		return result, nil
	}
	if !to.Valid() || !canTransition(from, to, force) {
		return result, &domain.InvalidTransitionError{From: from, To: to}
	}

	switch to {
	case domain.TicketStatusOpen:
		if from == domain.TicketStatusNew && ticket.FirstResponseAt == nil {
			ticket.FirstResponseAt = timePtr(now)
		}
	case domain.TicketStatusResolved:
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = timePtr(now)
		}
	case domain.TicketStatusClosed, domain.TicketStatusCancelled:
		ticket.ClosedAt = timePtr(now)
	}

	ticket.Status = to
	ticket.LastActivityAt = now
	ticket.UpdatedAt = now
	result.Changed = true
	result.Forced = force && from != domain.TicketStatusResolved && to == domain.TicketStatusClosed
	return result, nil
}
