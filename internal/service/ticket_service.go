package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketService coordinates ticket creation, status and priority changes.
type TicketService struct {
	store        repository.Store
	capabilities CapabilityChecker
	events       publisher
	now          Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store        repository.Store
	Capabilities CapabilityChecker
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          Clock
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ClientID    string
	ClientTier  string
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// StatusChangeInput describes a requested status change.
type StatusChangeInput struct {
	Status domain.TicketStatus
	Force  bool
	Reason string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
	Breached   *domain.SLADimension
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketDetail is a ticket with its visible thread.
type TicketDetail struct {
	Ticket      *domain.Ticket
	Comments    []domain.Comment
	Attachments []domain.Attachment
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := clockOrDefault(deps.Now)
	return &TicketService{
		store:        deps.Store,
		capabilities: deps.Capabilities,
		events:       publisher{dispatcher: deps.Dispatcher, logger: loggerOrNop(deps.Logger), now: now},
		now:          now,
	}
}

// CreateTicket resolves the SLA windows and stores the ticket as new. When no
// policy covers the priority nothing is stored.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	switch {
	case actor.IsClient():
		input.ClientID = actor.ID
	case actor.IsStaff():
		if _, err := uuid.Parse(input.ClientID); err != nil {
			return nil, apperrors.NewValidationError("client_id must be a uuid", map[string]any{"client_id": input.ClientID})
		}
	default:
		return nil, apperrors.NewForbidden("ticket creation requires a client or staff actor")
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		Code:           generateTicketCode(),
		ClientID:       input.ClientID,
		ClientTier:     strings.TrimSpace(input.ClientTier),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusNew,
		Priority:       input.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}

	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		windows, err := ResolveSLA(ctx, repos.Policies, ticket.Priority, ticket.ClientTier)
		if err != nil {
			return err
		}
		applyDeadlines(ticket, windows)
		return repos.Tickets.Create(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, actor, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Code:               ticket.Code,
			ClientID:           ticket.ClientID,
			Priority:           ticket.Priority,
			Title:              ticket.Title,
			FirstResponseDueAt: ticket.FirstResponseDueAt,
			ResolutionDueAt:    ticket.ResolutionDueAt,
		},
	})
	return ticket, nil
}

// GetTicket returns the ticket with comments and attachments visible to actor.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*TicketDetail, error) {
	repos := s.store.Repositories()
	ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := ensureTicketAccess(actor, ticket); err != nil {
		return nil, err
	}
	comments, err := repos.Comments.ListByTicket(ctx, ticket.ID, !actor.IsClient())
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	attachments, err := repos.Attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return &TicketDetail{Ticket: ticket, Comments: comments, Attachments: attachments}, nil
}

// ListTickets lists tickets; clients only ever see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		AssigneeID: filter.AssigneeID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Breached:   filter.Breached,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if actor.IsClient() {
		clientID := actor.ID
		repoFilter.ClientID = &clientID
	}
	return s.store.Repositories().Tickets.List(ctx, repoFilter)
}

// History returns the audit trail of a ticket, optionally narrowed to
// some change types.
func (s *TicketService) History(ctx context.Context, actor domain.Actor, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	repos := s.store.Repositories()
	ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := ensureTicketAccess(actor, ticket); err != nil {
		return nil, err
	}
	return repos.History.ListByTicket(ctx, ticket.ID, changeTypes...)
}

// ChangeStatus applies a lifecycle transition and its side effects atomically.
// An invalid transition leaves the stored ticket untouched.
func (s *TicketService) ChangeStatus(ctx context.Context, actor domain.Actor, ticketID string, input StatusChangeInput) (*domain.Ticket, error) {
	if input.Force && !s.can(actor, domain.CapabilityForceClose) {
		return nil, apperrors.NewForbidden("force close requires the " + string(domain.CapabilityForceClose) + " capability")
	}

	var (
		ticket *domain.Ticket
		result TransitionResult
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		ticket, err = lockTicket(ctx, repos.Tickets, ticketID)
		if err != nil {
			return err
		}
		if err := ensureTicketAccess(actor, ticket); err != nil {
			return err
		}
		if actor.IsClient() && !clientMayRequest(ticket.Status, input.Status) {
			return apperrors.NewForbidden("clients may only cancel or close their tickets")
		}
		result, err = ApplyTransition(ticket, input.Status, input.Force, s.now())
		if err != nil {
			return err
		}
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.events.publish(ctx, actor, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: result.From,
				NewStatus: result.To,
				Forced:    result.Forced,
				Reason:    strings.TrimSpace(input.Reason),
			},
		})
	}
	return ticket, nil
}

// ChangePriority switches the priority and recomputes the deadlines of every
// dimension that is neither met nor breached, measured from created_at.
func (s *TicketService) ChangePriority(ctx context.Context, actor domain.Actor, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !s.can(actor, domain.CapabilityChangePriority) {
		return nil, apperrors.NewForbidden("changing priority requires the " + string(domain.CapabilityChangePriority) + " capability")
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	var (
		ticket      *domain.Ticket
		oldPriority domain.TicketPriority
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		ticket, err = lockTicket(ctx, repos.Tickets, ticketID)
		if err != nil {
			return err
		}
		if ticket.IsTerminal() {
			return domain.ErrTicketTerminal
		}
		oldPriority = ticket.Priority
		if oldPriority == priority {
			return nil
		}
		windows, err := ResolveSLA(ctx, repos.Policies, priority, ticket.ClientTier)
		if err != nil {
			return err
		}
		now := s.now()
		ticket.Priority = priority
		applyDeadlines(ticket, windows)
		ticket.UpdatedAt = now
		ticket.LastActivityAt = now
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	if oldPriority != priority {
		s.events.publish(ctx, actor, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Payload: events.TicketPriorityChangedPayload{
				OldPriority:        oldPriority,
				NewPriority:        priority,
				FirstResponseDueAt: ticket.FirstResponseDueAt,
				ResolutionDueAt:    ticket.ResolutionDueAt,
			},
		})
	}
	return ticket, nil
}

func (s *TicketService) can(actor domain.Actor, action domain.Capability) bool {
	return s.capabilities != nil && s.capabilities.HasCapability(actor, action)
}

// clientMayRequest limits clients to withdrawing or finalizing their own ticket.
func clientMayRequest(from, to domain.TicketStatus) bool {
	if from == to {
		return true
	}
	return to == domain.TicketStatusCancelled ||
		(from == domain.TicketStatusResolved && to == domain.TicketStatusClosed)
}

func ensureTicketAccess(actor domain.Actor, ticket *domain.Ticket) error {
	switch actor.Type {
	case domain.SubjectTypeStaff, domain.SubjectTypeSystem:
		return nil
	case domain.SubjectTypeClient:
		if ticket.ClientID == actor.ID {
			return nil
		}
	}
	return apperrors.NewForbidden("access denied")
}

func loadTicket(ctx context.Context, tickets repository.TicketRepository, id string) (*domain.Ticket, error) {
	ticket, err := tickets.GetByID(ctx, id)
	if err != nil {
		return nil, ticketLookupError(id, err)
	}
	return ticket, nil
}

func lockTicket(ctx context.Context, tickets repository.TicketRepository, id string) (*domain.Ticket, error) {
	ticket, err := tickets.GetForUpdate(ctx, id)
	if err != nil {
		return nil, ticketLookupError(id, err)
	}
	return ticket, nil
}

func ticketLookupError(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return fmt.Errorf("load ticket %s: %w", id, err)
}
