package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventCommentAdded          EventType = "comment_added"
	EventAttachmentAdded       EventType = "attachment_added"
	EventAttachmentDeleted     EventType = "attachment_deleted"
	EventTicketSLABreached     EventType = "ticket_sla_breached"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventCommentAdded,
	EventAttachmentAdded,
	EventAttachmentDeleted,
	EventTicketSLABreached,
}

// Known reports whether t is one of AllEventTypes.
func (t EventType) Known() bool {
	for _, candidate := range AllEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.SubjectType `json:"type"`
	ID   *string            `json:"id,omitempty"`
}

// ActorFrom converts a domain actor.
func ActorFrom(actor domain.Actor) Actor {
	out := Actor{Type: actor.Type}
	if actor.ID != "" {
		id := actor.ID
		out.ID = &id
	}
	return out
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code               string                `json:"code"`
	ClientID           string                `json:"client_id"`
	Priority           domain.TicketPriority `json:"priority"`
	Title              string                `json:"title"`
	FirstResponseDueAt *time.Time            `json:"first_response_due_at,omitempty"`
	ResolutionDueAt    *time.Time            `json:"resolution_due_at,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Forced    bool                `json:"forced,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority        domain.TicketPriority `json:"old_priority"`
	NewPriority        domain.TicketPriority `json:"new_priority"`
	FirstResponseDueAt *time.Time            `json:"first_response_due_at,omitempty"`
	ResolutionDueAt    *time.Time            `json:"resolution_due_at,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID *string `json:"new_assignee_id,omitempty"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string                   `json:"comment_id"`
	SenderType  domain.SenderType        `json:"sender_type"`
	Visibility  domain.CommentVisibility `json:"visibility"`
	BodyPreview string                   `json:"body_preview"`
}

// AttachmentPayload payload for attachment added/deleted events.
type AttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

// TicketSLABreachedPayload payload.
type TicketSLABreachedPayload struct {
	Dimension  domain.SLADimension   `json:"dimension"`
	Priority   domain.TicketPriority `json:"priority"`
	DueAt      time.Time             `json:"due_at"`
	BreachedAt time.Time             `json:"breached_at"`
}
