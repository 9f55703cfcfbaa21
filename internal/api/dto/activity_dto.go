package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body          string                   `json:"body"`
	Visibility    domain.CommentVisibility `json:"visibility"`
	AwaitCustomer bool                     `json:"await_customer"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID         string                   `json:"id"`
	TicketID   string                   `json:"ticket_id"`
	SenderType domain.SenderType        `json:"sender_type"`
	AuthorID   string                   `json:"author_id"`
	Visibility domain.CommentVisibility `json:"visibility"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// CommentCreatedResponse is returned after posting a comment.
type CommentCreatedResponse struct {
	Comment CommentResponse `json:"comment"`
	Ticket  TicketSummary   `json:"ticket"`
	Events  []string        `json:"events"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID           string            `json:"id"`
	TicketID     string            `json:"ticket_id"`
	CommentID    *string           `json:"comment_id"`
	UploaderID   string            `json:"uploader_id"`
	UploaderType domain.SenderType `json:"uploader_type"`
	FileName     string            `json:"file_name"`
	MimeType     string            `json:"mime_type"`
	SizeBytes    int64             `json:"size_bytes"`
	Checksum     string            `json:"checksum"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewCommentResponse maps a comment.
func NewCommentResponse(comment *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		SenderType: comment.SenderType,
		AuthorID:   comment.AuthorID,
		Visibility: comment.Visibility,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}
}

// NewAttachmentResponse maps attachment metadata.
func NewAttachmentResponse(att *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:           att.ID,
		TicketID:     att.TicketID,
		CommentID:    att.CommentID,
		UploaderID:   att.UploaderID,
		UploaderType: att.UploaderType,
		FileName:     att.FileName,
		MimeType:     att.MimeType,
		SizeBytes:    att.SizeBytes,
		Checksum:     att.Checksum,
		CreatedAt:    att.CreatedAt,
	}
}
