package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// NotificationChannel is the delivery path of a notification.
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelWebhook NotificationChannel = "webhook"
)

// Audience is who a notification is meant for.
type Audience string

const (
	AudienceClient   Audience = "client"
	AudienceAssignee Audience = "assignee"
	AudienceStaff    Audience = "staff"
)

// Notification is one message planned for a ticket event.
type Notification struct {
	Channel   NotificationChannel
	Audience  Audience
	Target    string
	TicketID  string
	EventType events.EventType
	Subject   string
}

// Notifier delivers planned notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type logNotifier struct {
	logger *zap.Logger
}

func (l logNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("channel", string(n.Channel)),
		zap.String("audience", string(n.Audience)),
		zap.String("target", n.Target),
		zap.String("ticket_id", n.TicketID),
		zap.String("event_type", string(n.EventType)),
		zap.String("subject", n.Subject))
	return nil
}

// NotificationService turns ticket events into client emails and staff
// webhooks. Delivery goes through a Notifier; the default one only logs.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	notifier   Notifier
}

// NewNotificationService creates the service with the logging notifier.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	logger = loggerOrNop(logger)
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		notifier:   logNotifier{logger: logger},
	}
}

// WithNotifier replaces the delivery backend.
func (n *NotificationService) WithNotifier(notifier Notifier) *NotificationService {
	if notifier != nil {
		n.notifier = notifier
	}
	return n
}

// RegisterHandlers subscribes to the events that notify someone.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventCommentAdded,
		events.EventTicketSLABreached,
	} {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	for _, planned := range n.Plan(event) {
		if err := n.notifier.Notify(ctx, planned); err != nil {
			n.logger.Warn("notification failed",
				zap.String("channel", string(planned.Channel)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}

// Plan lists the notifications an event produces. Channels without a
// configured target are skipped.
func (n *NotificationService) Plan(event events.Event) []Notification {
	var out []Notification
	email := func(subject string) {
		if from := strings.TrimSpace(n.cfg.EmailFrom); from != "" {
			out = append(out, Notification{Channel: ChannelEmail, Audience: AudienceClient, Target: from,
				TicketID: event.TicketID, EventType: event.Type, Subject: subject})
		}
	}
	webhook := func(audience Audience, subject string) {
		if url := strings.TrimSpace(n.cfg.WebhookURL); url != "" {
			out = append(out, Notification{Channel: ChannelWebhook, Audience: audience, Target: url,
				TicketID: event.TicketID, EventType: event.Type, Subject: subject})
		}
	}

	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		email(fmt.Sprintf("[%s] request received: %s", payload.Code, payload.Title))
		webhook(AudienceStaff, fmt.Sprintf("new %s ticket %s", payload.Priority, payload.Code))
	case events.TicketStatusChangedPayload:
		if payload.NewStatus == domain.TicketStatusPendingCustomer || payload.NewStatus == domain.TicketStatusResolved {
			email(fmt.Sprintf("your ticket is now %s", payload.NewStatus))
		}
		webhook(AudienceStaff, fmt.Sprintf("status %s -> %s", payload.OldStatus, payload.NewStatus))
	case events.TicketAssignedPayload:
		if payload.NewAssigneeID != nil {
			webhook(AudienceAssignee, "ticket assigned to "+*payload.NewAssigneeID)
		}
	case events.CommentAddedPayload:
		if payload.Visibility != domain.VisibilityPublic {
			return nil
		}
		if payload.SenderType == domain.SenderTypeStaff {
			email("new reply on your ticket")
		} else {
			webhook(AudienceAssignee, "client replied")
		}
	case events.TicketSLABreachedPayload:
		n.logger.Warn("sla breached",
			zap.String("ticket_id", event.TicketID),
			zap.String("dimension", string(payload.Dimension)),
			zap.Time("due_at", payload.DueAt))
		webhook(AudienceStaff, fmt.Sprintf("%s sla breached (%s)", payload.Dimension, payload.Priority))
	}
	return out
}
