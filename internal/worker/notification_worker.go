package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// EventProducer forwards events to an external stream.
type EventProducer interface {
	Enabled() bool
	Produce(ctx context.Context, key string, value any) error
}

// EventWorkers bundles the post-commit event consumers.
type EventWorkers struct {
	Dispatcher    events.Dispatcher
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Producer      EventProducer
	Logger        *zap.Logger
}

// StartEventWorkers registers notification, audit and stream handlers.
func StartEventWorkers(w EventWorkers) {
	if w.Notifications != nil {
		w.Notifications.RegisterHandlers()
	}
	if w.Audit != nil {
		w.Audit.RegisterHandlers()
	}
	if w.Dispatcher != nil && w.Producer != nil && w.Producer.Enabled() {
		events.SubscribeAll(w.Dispatcher, forwardTo(w.Producer))
		if w.Logger != nil {
			w.Logger.Info("ticket events forwarded to kafka")
		}
	}
}

func forwardTo(producer EventProducer) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		return producer.Produce(ctx, event.TicketID, event)
	}
}
