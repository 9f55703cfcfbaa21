package domain

import "time"

// SenderType indicates who authored a comment.
type SenderType string

const (
	SenderTypeClient SenderType = "client"
	SenderTypeStaff  SenderType = "staff"
)

// CommentVisibility differentiates between public replies and internal notes.
type CommentVisibility string

const (
	VisibilityPublic   CommentVisibility = "public"
	VisibilityInternal CommentVisibility = "internal"
)

// Valid reports whether v is a known visibility.
func (v CommentVisibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityInternal
}

// Comment captures communications in a ticket thread. Comments are append-only.
type Comment struct {
	ID         string
	TicketID   string
	SenderType SenderType
	AuthorID   string
	Visibility CommentVisibility
	Body       string
	CreatedAt  time.Time
}

// Attachment stores metadata for a document attached to a ticket. The bytes
// live in the object store under StorageKey.
type Attachment struct {
	ID           string
	TicketID     string
	CommentID    *string
	UploaderID   string
	UploaderType SenderType
	StorageKey   string
	FileName     string
	MimeType     string
	SizeBytes    int64
	Checksum     string
	CreatedAt    time.Time
}
