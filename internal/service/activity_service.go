package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var commentPolicy = bluemonday.UGCPolicy()

// CommentEvent is a domain event derived from a comment before it commits.
// Each one is applied to the ticket inside the comment's transaction.
type CommentEvent string

const (
	// PublicClientCommentPosted reopens a ticket waiting on the customer.
	PublicClientCommentPosted CommentEvent = "public_client_comment_posted"
	// FirstStaffResponsePosted meets the first response milestone.
	FirstStaffResponsePosted CommentEvent = "first_staff_response_posted"
	// CustomerInputRequested parks the ticket until the customer answers.
	CustomerInputRequested CommentEvent = "customer_input_requested"
)

// ActivityService appends comments and applies their lifecycle feedback.
type ActivityService struct {
	store        repository.Store
	capabilities CapabilityChecker
	events       publisher
	now          Clock
}

// ActivityDependencies bundles collaborators for the activity service.
type ActivityDependencies struct {
	Store        repository.Store
	Capabilities CapabilityChecker
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          Clock
}

// CommentInput describes a new comment.
type CommentInput struct {
	Visibility    domain.CommentVisibility
	Body          string
	AwaitCustomer bool
}

// CommentResult carries the stored comment, the ticket after feedback and
// the domain events that were applied.
type CommentResult struct {
	Comment    *domain.Comment
	Ticket     *domain.Ticket
	Events     []CommentEvent
	Transition *TransitionResult
}

// NewActivityService constructs the service.
func NewActivityService(deps ActivityDependencies) *ActivityService {
	now := clockOrDefault(deps.Now)
	return &ActivityService{
		store:        deps.Store,
		capabilities: deps.Capabilities,
		events:       publisher{dispatcher: deps.Dispatcher, logger: loggerOrNop(deps.Logger), now: now},
		now:          now,
	}
}

// AddComment inserts the comment and applies any status feedback in the same
// transaction; either both commit or neither does.
func (s *ActivityService) AddComment(ctx context.Context, actor domain.Actor, ticketID string, input CommentInput) (*CommentResult, error) {
	if input.Visibility == "" {
		input.Visibility = domain.VisibilityPublic
	}
	if !input.Visibility.Valid() {
		return nil, apperrors.NewValidationError("invalid visibility", map[string]any{"visibility": input.Visibility})
	}
	switch {
	case actor.IsClient():
		if input.Visibility != domain.VisibilityPublic || input.AwaitCustomer {
			return nil, apperrors.NewForbidden("clients may only post public comments")
		}
	case actor.IsStaff():
		if input.Visibility == domain.VisibilityInternal &&
			(s.capabilities == nil || !s.capabilities.HasCapability(actor, domain.CapabilityInternalComment)) {
			return nil, apperrors.NewForbidden("internal comments require the " + string(domain.CapabilityInternalComment) + " capability")
		}
		if input.AwaitCustomer && input.Visibility != domain.VisibilityPublic {
			return nil, apperrors.NewValidationError("await_customer requires a public comment", nil)
		}
	default:
		return nil, apperrors.NewForbidden("comments require a client or staff actor")
	}

	body := strings.TrimSpace(commentPolicy.Sanitize(input.Body))
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}

	result := &CommentResult{}
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := lockTicket(ctx, repos.Tickets, ticketID)
		if err != nil {
			return err
		}
		if err := ensureTicketAccess(actor, ticket); err != nil {
			return err
		}

		now := s.now()
		comment := &domain.Comment{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			SenderType: actor.SenderType(),
			AuthorID:   actor.ID,
			Visibility: input.Visibility,
			Body:       body,
			CreatedAt:  now,
		}

		derived := deriveCommentEvents(ticket, comment, input.AwaitCustomer)
		transition, err := applyCommentEvents(ticket, derived, now)
		if err != nil {
			return err
		}
		ticket.LastActivityAt = now

		if err := repos.Comments.Create(ctx, comment); err != nil {
			return err
		}
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		result.Comment = comment
		result.Ticket = ticket
		result.Events = derived
		result.Transition = transition
		return nil
	})
	if err != nil {
		return nil, err
	}

	published := []events.Event{{
		Type:     events.EventCommentAdded,
		TicketID: result.Ticket.ID,
		Payload: events.CommentAddedPayload{
			CommentID:   result.Comment.ID,
			SenderType:  result.Comment.SenderType,
			Visibility:  result.Comment.Visibility,
			BodyPreview: stringPreview(result.Comment.Body, 120),
		},
	}}
	if result.Transition != nil && result.Transition.Changed {
		published = append(published, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: result.Ticket.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: result.Transition.From,
				NewStatus: result.Transition.To,
				Reason:    "comment:" + result.Comment.ID,
			},
		})
	}
	s.events.publish(ctx, actor, published...)
	return result, nil
}

// deriveCommentEvents decides which feedback the comment triggers, given the
// ticket state before the comment.
func deriveCommentEvents(ticket *domain.Ticket, comment *domain.Comment, awaitCustomer bool) []CommentEvent {
	if comment.Visibility != domain.VisibilityPublic {
		return nil
	}
	var out []CommentEvent
	switch comment.SenderType {
	case domain.SenderTypeClient:
		if ticket.Status == domain.TicketStatusPendingCustomer {
			out = append(out, PublicClientCommentPosted)
		}
	case domain.SenderTypeStaff:
		if ticket.FirstResponseAt == nil && !ticket.IsTerminal() {
			out = append(out, FirstStaffResponsePosted)
		}
		if awaitCustomer {
			out = append(out, CustomerInputRequested)
		}
	}
	return out
}

// applyCommentEvents runs the derived events through the state machine. The
// returned result spans from the first to the last status the ticket took.
func applyCommentEvents(ticket *domain.Ticket, derived []CommentEvent, now time.Time) (*TransitionResult, error) {
	var combined *TransitionResult
	record := func(res TransitionResult) {
		if !res.Changed {
			return
		}
		if combined == nil {
			combined = &TransitionResult{From: res.From}
		}
		combined.To = res.To
		combined.Changed = combined.From != combined.To
	}

	for _, event := range derived {
		switch event {
		case PublicClientCommentPosted:
			res, err := ApplyTransition(ticket, domain.TicketStatusOpen, false, now)
			if err != nil {
				return nil, err
			}
			record(res)
		case FirstStaffResponsePosted:
			if ticket.Status == domain.TicketStatusNew {
				res, err := ApplyTransition(ticket, domain.TicketStatusOpen, false, now)
				if err != nil {
					return nil, err
				}
				record(res)
				continue
			}
			if ticket.FirstResponseAt == nil {
				ticket.FirstResponseAt = timePtr(now)
				ticket.UpdatedAt = now
			}
		case CustomerInputRequested:
			res, err := ApplyTransition(ticket, domain.TicketStatusPendingCustomer, false, now)
			if err != nil {
				return nil, err
			}
			record(res)
		}
	}
	return combined, nil
}
