package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the default clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// CapabilityChecker answers whether an actor may perform an action. Permission
// evaluation lives outside the core; services only consult this contract.
type CapabilityChecker interface {
	HasCapability(actor domain.Actor, action domain.Capability) bool
}

// publisher fans events out after a unit of work committed. Handler errors
// are logged and never reach the caller.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func (p publisher) publish(ctx context.Context, actor domain.Actor, evts ...events.Event) {
	if p.dispatcher == nil {
		return
	}
	for _, event := range evts {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = p.now()
		}
		if event.Actor.Type == "" {
			event.Actor = events.ActorFrom(actor)
		}
		if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
			p.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

func clockOrDefault(now Clock) Clock {
	if now == nil {
		return SystemClock
	}
	return now
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func generateTicketCode() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// stringPreview shortens body to at most max bytes without splitting a rune.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	suffix := "..."
	if max <= len(suffix) {
		suffix = ""
	}
	cut := max - len(suffix)
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + suffix
}

func timePtr(t time.Time) *time.Time {
	return &t
}
