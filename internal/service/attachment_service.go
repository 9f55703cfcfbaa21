package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// ObjectStore holds attachment bytes outside the database.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// AttachmentService validates, stores and removes ticket attachments.
type AttachmentService struct {
	store        repository.Store
	objects      ObjectStore
	capabilities CapabilityChecker
	events       publisher
	logger       *zap.Logger
	now          Clock
	maxSize      int64
	allowedTypes map[string]struct{}
}

// AttachmentDependencies bundles collaborators for the attachment service.
type AttachmentDependencies struct {
	Store        repository.Store
	Objects      ObjectStore
	Capabilities CapabilityChecker
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          Clock
	MaxSizeBytes int64
	AllowedTypes []string
}

// UploadInput describes an incoming file.
type UploadInput struct {
	FileName  string
	MimeType  string
	Size      int64
	Content   io.Reader
	CommentID *string
}

// NewAttachmentService constructs the service.
func NewAttachmentService(deps AttachmentDependencies) *AttachmentService {
	now := clockOrDefault(deps.Now)
	logger := loggerOrNop(deps.Logger)
	allowed := make(map[string]struct{}, len(deps.AllowedTypes))
	for _, mimeType := range deps.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(mimeType))] = struct{}{}
	}
	return &AttachmentService{
		store:        deps.Store,
		objects:      deps.Objects,
		capabilities: deps.Capabilities,
		events:       publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:       logger,
		now:          now,
		maxSize:      deps.MaxSizeBytes,
		allowedTypes: allowed,
	}
}

// Validate rejects empty, oversized or disallowed uploads.
func (s *AttachmentService) Validate(fileName, mimeType string, size int64) error {
	if size <= 0 {
		return &domain.AttachmentValidationError{Reason: domain.AttachmentEmpty, FileName: fileName, Detail: "file is empty"}
	}
	if s.maxSize > 0 && size > s.maxSize {
		return &domain.AttachmentValidationError{
			Reason:   domain.AttachmentTooLarge,
			FileName: fileName,
			Detail:   fmt.Sprintf("%d bytes exceeds the %d byte limit", size, s.maxSize),
		}
	}
	if _, ok := s.allowedTypes[normalizeMimeType(mimeType)]; !ok {
		return &domain.AttachmentValidationError{
			Reason:   domain.AttachmentTypeNotAllowed,
			FileName: fileName,
			Detail:   fmt.Sprintf("mime type %q is not allowed", mimeType),
		}
	}
	return nil
}

// Upload validates the file before anything is stored, writes the bytes to
// the object store and then records the metadata.
func (s *AttachmentService) Upload(ctx context.Context, actor domain.Actor, ticketID string, input UploadInput) (*domain.Attachment, error) {
	if !actor.IsClient() && !actor.IsStaff() {
		return nil, apperrors.NewForbidden("uploads require a client or staff actor")
	}
	fileName := sanitizeFileName(input.FileName)
	if fileName == "" {
		return nil, apperrors.NewValidationError("file name is required", nil)
	}
	if err := s.Validate(fileName, input.MimeType, input.Size); err != nil {
		return nil, err
	}

	ticket, err := loadTicket(ctx, s.store.Repositories().Tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := ensureTicketAccess(actor, ticket); err != nil {
		return nil, err
	}

	content, err := readLimited(input.Content, s.maxSize)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(fileName, input.MimeType, int64(len(content))); err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(content)
	attachment := &domain.Attachment{
		ID:           uuid.NewString(),
		TicketID:     ticket.ID,
		CommentID:    input.CommentID,
		UploaderID:   actor.ID,
		UploaderType: actor.SenderType(),
		FileName:     fileName,
		MimeType:     normalizeMimeType(input.MimeType),
		SizeBytes:    int64(len(content)),
		Checksum:     "blake2b-256:" + hex.EncodeToString(sum[:]),
		CreatedAt:    s.now(),
	}
	attachment.StorageKey = path.Join("tickets", ticket.ID, attachment.ID, fileName)

	if err := s.objects.Put(ctx, attachment.StorageKey, bytes.NewReader(content), attachment.SizeBytes, attachment.MimeType); err != nil {
		return nil, fmt.Errorf("store attachment bytes: %w", err)
	}

	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		locked, err := lockTicket(ctx, repos.Tickets, ticket.ID)
		if err != nil {
			return err
		}
		if err := repos.Attachments.Create(ctx, attachment); err != nil {
			return err
		}
		locked.LastActivityAt = attachment.CreatedAt
		return repos.Tickets.Update(ctx, locked)
	})
	if err != nil {
		if rmErr := s.objects.Remove(ctx, attachment.StorageKey); rmErr != nil {
			s.logger.Warn("orphaned attachment object", zap.String("storage_key", attachment.StorageKey), zap.Error(rmErr))
		}
		return nil, err
	}

	s.events.publish(ctx, actor, events.Event{
		Type:     events.EventAttachmentAdded,
		TicketID: ticket.ID,
		Payload:  attachmentPayload(attachment),
	})
	return attachment, nil
}

// Download returns the metadata and a reader for the stored bytes. The
// caller must close the reader.
func (s *AttachmentService) Download(ctx context.Context, actor domain.Actor, attachmentID string) (*domain.Attachment, io.ReadCloser, error) {
	repos := s.store.Repositories()
	attachment, err := loadAttachment(ctx, repos.Attachments, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	ticket, err := loadTicket(ctx, repos.Tickets, attachment.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureTicketAccess(actor, ticket); err != nil {
		return nil, nil, err
	}
	reader, err := s.objects.Get(ctx, attachment.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read attachment bytes: %w", err)
	}
	return attachment, reader, nil
}

// Delete removes an attachment. Only the uploader or an actor holding
// attachments.delete_any may delete.
func (s *AttachmentService) Delete(ctx context.Context, actor domain.Actor, attachmentID string) error {
	var attachment *domain.Attachment
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		attachment, err = loadAttachment(ctx, repos.Attachments, attachmentID)
		if err != nil {
			return err
		}
		if !s.mayDelete(actor, attachment) {
			return apperrors.NewForbidden("only the uploader or a privileged role may delete this attachment")
		}
		ticket, err := lockTicket(ctx, repos.Tickets, attachment.TicketID)
		if err != nil {
			return err
		}
		if err := repos.Attachments.Delete(ctx, attachment.ID); err != nil {
			return err
		}
		ticket.LastActivityAt = s.now()
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return err
	}

	if err := s.objects.Remove(ctx, attachment.StorageKey); err != nil {
		s.logger.Warn("remove attachment object", zap.String("storage_key", attachment.StorageKey), zap.Error(err))
	}
	s.events.publish(ctx, actor, events.Event{
		Type:     events.EventAttachmentDeleted,
		TicketID: attachment.TicketID,
		Payload:  attachmentPayload(attachment),
	})
	return nil
}

func (s *AttachmentService) mayDelete(actor domain.Actor, attachment *domain.Attachment) bool {
	if actor.ID != "" && actor.ID == attachment.UploaderID && actor.SenderType() == attachment.UploaderType {
		return true
	}
	return s.capabilities != nil && s.capabilities.HasCapability(actor, domain.CapabilityDeleteAnyAttachment)
}

func loadAttachment(ctx context.Context, attachments repository.AttachmentRepository, id string) (*domain.Attachment, error) {
	attachment, err := attachments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": id})
		}
		return nil, fmt.Errorf("load attachment %s: %w", id, err)
	}
	return attachment, nil
}

func attachmentPayload(attachment *domain.Attachment) events.AttachmentPayload {
	return events.AttachmentPayload{
		AttachmentID: attachment.ID,
		FileName:     attachment.FileName,
		MimeType:     attachment.MimeType,
		SizeBytes:    attachment.SizeBytes,
	}
}

// readLimited reads at most limit+1 bytes so an understated size is caught.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return content, nil
}

func normalizeMimeType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

// sanitizeFileName strips any path components.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
