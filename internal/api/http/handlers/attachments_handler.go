package handlers

import (
	"mime"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cozycabin/cozycabin/internal/service"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// AttachmentsHandler handles ticket file uploads and downloads.
type AttachmentsHandler struct {
	service *service.AttachmentService
}

// NewAttachmentsHandler constructs handler.
func NewAttachmentsHandler(attachmentService *service.AttachmentService) *AttachmentsHandler {
	return &AttachmentsHandler{service: attachmentService}
}

// Upload POST /tickets/:id/attachments (multipart field "file").
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file is required", map[string]any{"field": "file"})
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer file.Close()

	input := service.UploadInput{
		TicketID:    c.Params("id"),
		FileName:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Size:        header.Size,
		Body:        file,
	}
	if commentID := c.FormValue("comment_id"); commentID != "" {
		input.CommentID = &commentID
	}
	attachment, err := h.service.Upload(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachment})
}

// Download GET /attachments/:id/download.
func (h *AttachmentsHandler) Download(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	attachment, body, err := h.service.Open(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	contentType := attachment.FileType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName}))
	size := int(attachment.FileSize)
	if size <= 0 {
		size = -1
	}
	// fasthttp closes body once streamed
	return c.SendStream(body, size)
}

// Delete DELETE /attachments/:id.
func (h *AttachmentsHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentProfile(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
