package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload. ClientID is only honoured for staff callers.
type CreateTicketRequest struct {
	ClientID    string                `json:"client_id"`
	ClientTier  string                `json:"client_tier"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
	Force  bool                `json:"force"`
	Reason string              `json:"reason"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload. A null agent_id unassigns.
type AssignRequest struct {
	AgentID *string `json:"agent_id"`
}

// SLAStatus reports one SLA dimension of a ticket.
type SLAStatus struct {
	DueAt      *time.Time `json:"due_at"`
	MetAt      *time.Time `json:"met_at"`
	BreachedAt *time.Time `json:"breached_at"`
	Breached   bool       `json:"breached"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	Code           string                `json:"code"`
	ClientID       string                `json:"client_id"`
	ClientTier     string                `json:"client_tier,omitempty"`
	AssigneeID     *string               `json:"assignee_id"`
	Title          string                `json:"title"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	FirstResponse  SLAStatus             `json:"first_response"`
	Resolution     SLAStatus             `json:"resolution"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	ClosedAt       *time.Time            `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string               `json:"description"`
	Comments    []CommentResponse    `json:"comments"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.SubjectType      `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketSummary maps a ticket to its response.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:             ticket.ID,
		Code:           ticket.Code,
		ClientID:       ticket.ClientID,
		ClientTier:     ticket.ClientTier,
		AssigneeID:     ticket.AssigneeID,
		Title:          ticket.Title,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		FirstResponse:  slaStatus(ticket, domain.SLAFirstResponse),
		Resolution:     slaStatus(ticket, domain.SLAResolution),
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		LastActivityAt: ticket.LastActivityAt,
		ClosedAt:       ticket.ClosedAt,
	}
}

// NewTicketDetail maps a ticket with its thread.
func NewTicketDetail(ticket *domain.Ticket, comments []domain.Comment, attachments []domain.Attachment) TicketDetailResponse {
	resp := TicketDetailResponse{
		TicketSummary: NewTicketSummary(ticket),
		Description:   ticket.Description,
		Comments:      make([]CommentResponse, 0, len(comments)),
		Attachments:   make([]AttachmentResponse, 0, len(attachments)),
	}
	for i := range comments {
		resp.Comments = append(resp.Comments, NewCommentResponse(&comments[i]))
	}
	for i := range attachments {
		resp.Attachments = append(resp.Attachments, NewAttachmentResponse(&attachments[i]))
	}
	return resp
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func slaStatus(ticket *domain.Ticket, dim domain.SLADimension) SLAStatus {
	return SLAStatus{
		DueAt:      ticket.DueAt(dim),
		MetAt:      ticket.MetAt(dim),
		BreachedAt: ticket.BreachedAt(dim),
		Breached:   ticket.BreachReported(dim),
	}
}
