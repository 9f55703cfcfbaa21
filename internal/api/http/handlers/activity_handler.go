package handlers

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// ActivityHandler serves comments and attachments of a ticket.
type ActivityHandler struct {
	activity    *service.ActivityService
	attachments *service.AttachmentService
}

// NewActivityHandler constructs handler.
func NewActivityHandler(activity *service.ActivityService, attachments *service.AttachmentService) *ActivityHandler {
	return &ActivityHandler{activity: activity, attachments: attachments}
}

// AddComment POST /tickets/:id/comments.
func (h *ActivityHandler) AddComment(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "ticket")
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.activity.AddComment(c.UserContext(), actor, id, service.CommentInput{
		Visibility:    req.Visibility,
		Body:          req.Body,
		AwaitCustomer: req.AwaitCustomer,
	})
	if err != nil {
		return err
	}
	derived := make([]string, 0, len(result.Events))
	for _, event := range result.Events {
		derived = append(derived, string(event))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CommentCreatedResponse{
		Comment: dto.NewCommentResponse(result.Comment),
		Ticket:  dto.NewTicketSummary(result.Ticket),
		Events:  derived,
	}})
}

// UploadAttachment POST /tickets/:id/attachments (multipart field "file").
func (h *ActivityHandler) UploadAttachment(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "ticket")
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" is required", nil)
	}
	mimeType := header.Header.Get("Content-Type")
	if err := h.attachments.Validate(header.Filename, mimeType, header.Size); err != nil {
		return err
	}
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	input := service.UploadInput{
		FileName: header.Filename,
		MimeType: mimeType,
		Size:     header.Size,
		Content:  file,
	}
	if commentID := c.FormValue("comment_id"); commentID != "" {
		input.CommentID = &commentID
	}
	attachment, err := h.attachments.Upload(c.UserContext(), actor, id, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAttachmentResponse(attachment)})
}

// DownloadAttachment GET /attachments/:id.
func (h *ActivityHandler) DownloadAttachment(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "attachment")
	if err != nil {
		return err
	}
	attachment, reader, err := h.attachments.Download(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, attachment.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	c.Set("X-Checksum", attachment.Checksum)
	return c.SendStream(reader, int(attachment.SizeBytes))
}

// DeleteAttachment DELETE /attachments/:id.
func (h *ActivityHandler) DeleteAttachment(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "attachment")
	if err != nil {
		return err
	}
	if err := h.attachments.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
