package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// AuditService turns committed ticket events into history entries. It runs
// after the originating transaction, so a failed write never rolls it back.
type AuditService struct {
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the audit subscriber.
func NewAuditService(store repository.Store, dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		history:    store.Repositories().History,
		dispatcher: dispatcher,
		logger:     loggerOrNop(logger),
	}
}

// RegisterHandlers subscribes to the events that produce audit entries.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handle)
	a.dispatcher.Subscribe(events.EventTicketPriorityChanged, a.handle)
	a.dispatcher.Subscribe(events.EventTicketAssigned, a.handle)
	a.dispatcher.Subscribe(events.EventTicketSLABreached, a.handle)
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	entry, ok := historyEntry(event)
	if !ok {
		return nil
	}
	if err := a.history.Create(ctx, entry); err != nil {
		a.logger.Error("audit write failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("change_type", string(entry.ChangeType)),
			zap.Error(err))
		return fmt.Errorf("audit %s: %w", event.Type, err)
	}
	return nil
}

func historyEntry(event events.Event) (*domain.TicketHistory, bool) {
	entry := &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      event.TicketID,
		ChangedByType: event.Actor.Type,
		ChangedByID:   event.Actor.ID,
		CreatedAt:     event.Timestamp,
	}
	switch payload := event.Payload.(type) {
	case events.TicketStatusChangedPayload:
		entry.ChangeType = domain.ChangeTypeStatus
		entry.OldValue = map[string]any{"status": payload.OldStatus}
		entry.NewValue = map[string]any{"status": payload.NewStatus, "forced": payload.Forced, "reason": payload.Reason}
	case events.TicketPriorityChangedPayload:
		entry.ChangeType = domain.ChangeTypePriority
		entry.OldValue = map[string]any{"priority": payload.OldPriority}
		entry.NewValue = map[string]any{
			"priority":              payload.NewPriority,
			"first_response_due_at": payload.FirstResponseDueAt,
			"resolution_due_at":     payload.ResolutionDueAt,
		}
	case events.TicketAssignedPayload:
		entry.ChangeType = domain.ChangeTypeAssignee
		entry.OldValue = map[string]any{"assignee_id": payload.OldAssigneeID}
		entry.NewValue = map[string]any{"assignee_id": payload.NewAssigneeID}
	case events.TicketSLABreachedPayload:
		entry.ChangeType = domain.ChangeTypeSLABreach
		entry.OldValue = map[string]any{"dimension": payload.Dimension, "due_at": payload.DueAt}
		entry.NewValue = map[string]any{"dimension": payload.Dimension, "breached_at": payload.BreachedAt}
	default:
		return nil, false
	}
	return entry, true
}
