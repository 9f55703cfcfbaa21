package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AssignmentService handles single-owner ticket assignment.
type AssignmentService struct {
	store        repository.Store
	capabilities CapabilityChecker
	events       publisher
	now          Clock
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store        repository.Store
	Capabilities CapabilityChecker
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	now := clockOrDefault(deps.Now)
	return &AssignmentService{
		store:        deps.Store,
		capabilities: deps.Capabilities,
		events:       publisher{dispatcher: deps.Dispatcher, logger: loggerOrNop(deps.Logger), now: now},
		now:          now,
	}
}

// SelfAssign lets a staff member take a ticket.
func (s *AssignmentService) SelfAssign(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("staff required")
	}
	agentID := actor.ID
	return s.assign(ctx, actor, ticketID, &agentID)
}

// Assign replaces the ticket owner with agentID, or unassigns when nil.
// Terminal tickets may still be reassigned.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, ticketID string, agentID *string) (*domain.Ticket, error) {
	if s.capabilities == nil || !s.capabilities.HasCapability(actor, domain.CapabilityAssign) {
		return nil, apperrors.NewForbidden("assignment requires the " + string(domain.CapabilityAssign) + " capability")
	}
	return s.assign(ctx, actor, ticketID, agentID)
}

func (s *AssignmentService) assign(ctx context.Context, actor domain.Actor, ticketID string, agentID *string) (*domain.Ticket, error) {
	if agentID != nil {
		parsed, err := uuid.Parse(*agentID)
		if err != nil {
			return nil, apperrors.NewValidationError("agent_id must be a uuid", map[string]any{"agent_id": *agentID})
		}
		normalized := parsed.String()
		agentID = &normalized
	}

	var (
		ticket      *domain.Ticket
		oldAssignee *string
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		ticket, err = lockTicket(ctx, repos.Tickets, ticketID)
		if err != nil {
			return err
		}
		oldAssignee = ticket.AssigneeID
		now := s.now()
		ticket.AssigneeID = agentID
		ticket.LastActivityAt = now
		ticket.UpdatedAt = now
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	if !sameAssignee(oldAssignee, agentID) {
		s.events.publish(ctx, actor, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Payload: events.TicketAssignedPayload{
				OldAssigneeID: oldAssignee,
				NewAssigneeID: agentID,
			},
		})
	}
	return ticket, nil
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
