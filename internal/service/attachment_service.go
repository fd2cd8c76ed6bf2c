package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/repository"
	"github.com/cozycabin/cozycabin/internal/storage"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// AttachmentService stores ticket files and their metadata records.
type AttachmentService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	objects     storage.ObjectStore
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// AttachmentDependencies bundles collaborators for attachment service.
type AttachmentDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	Objects        storage.ObjectStore
	Logger         *zap.Logger
}

// UploadInput describes one file to attach.
type UploadInput struct {
	TicketID    string
	CommentID   *string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// NewAttachmentService constructs the service.
func NewAttachmentService(deps AttachmentDependencies) *AttachmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		objects:     deps.Objects,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Upload stores the object first and then records its metadata. If the
// record cannot be written the stored object is removed again.
func (s *AttachmentService) Upload(ctx context.Context, actor *domain.Profile, input UploadInput) (*domain.Attachment, error) {
	ticket, err := s.visibleTicket(ctx, actor, input.TicketID)
	if err != nil {
		return nil, err
	}
	name := cleanFileName(input.FileName)
	if name == "" {
		return nil, apperrors.NewValidationError("file name is required", map[string]any{"field": "file"})
	}
	if input.Body == nil || input.Size <= 0 {
		return nil, apperrors.NewValidationError("file is empty", map[string]any{"field": "file"})
	}
	if input.CommentID != nil && *input.CommentID != "" {
		comment, err := s.comments.GetByID(ctx, *input.CommentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("comment", map[string]any{"comment_id": *input.CommentID})
			}
			return nil, apperrors.MapError(err)
		}
		if comment.TicketID != ticket.ID {
			return nil, apperrors.NewValidationError("comment belongs to another ticket", map[string]any{"comment_id": *input.CommentID})
		}
	} else {
		input.CommentID = nil
	}

	objectPath := ObjectPath(ticket.ID, s.newID(), name, s.now())
	if err := s.objects.Upload(ctx, objectPath, input.Body); err != nil {
		return nil, apperrors.NewUpstreamError("failed to store attachment", err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attachment := &domain.Attachment{
		TicketID:    ticket.ID,
		CommentID:   input.CommentID,
		FileName:    name,
		FileType:    contentType,
		FileSize:    input.Size,
		StoragePath: objectPath,
		UploadedBy:  actor.ID,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		if removeErr := s.objects.Remove(context.WithoutCancel(ctx), objectPath); removeErr != nil {
			s.logger.Error("orphaned attachment object",
				zap.String("storage_path", objectPath),
				zap.Error(removeErr))
		}
		return nil, apperrors.MapError(fmt.Errorf("record attachment: %w", err))
	}
	return attachment, nil
}

// Open returns the attachment record and a reader over its contents.
func (s *AttachmentService) Open(ctx context.Context, actor *domain.Profile, attachmentID string) (*domain.Attachment, io.ReadCloser, error) {
	attachment, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.visibleTicket(ctx, actor, attachment.TicketID); err != nil {
		return nil, nil, err
	}
	body, err := s.objects.Open(ctx, attachment.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, apperrors.NewNotFound("attachment content", map[string]any{"attachment_id": attachmentID})
		}
		return nil, nil, apperrors.NewUpstreamError("failed to read attachment", err)
	}
	return attachment, body, nil
}

// Delete removes the stored object and then the metadata record. When the
// object cannot be removed the record is kept.
func (s *AttachmentService) Delete(ctx context.Context, actor *domain.Profile, attachmentID string) error {
	attachment, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if _, err := s.visibleTicket(ctx, actor, attachment.TicketID); err != nil {
		return err
	}
	if attachment.UploadedBy != actor.ID && !actor.Role.IsStaff() {
		return apperrors.NewForbidden("only the uploader or staff can delete an attachment")
	}
	if err := s.objects.Remove(ctx, attachment.StoragePath); err != nil {
		return apperrors.NewUpstreamError("failed to remove attachment object", err)
	}
	if err := s.attachments.Delete(ctx, attachment.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *AttachmentService) loadAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, error) {
	attachment, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
		}
		return nil, apperrors.MapError(err)
	}
	return attachment, nil
}

func (s *AttachmentService) visibleTicket(ctx context.Context, actor *domain.Profile, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err, ticketID)
	}
	if !canViewTicket(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ObjectPath builds the bucket key <ticketID>/<unix-millis>-<id8>-<name>.
// The id segment keeps same-name uploads within one millisecond apart.
func ObjectPath(ticketID, id, fileName string, at time.Time) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s/%d-%s-%s", ticketID, at.UnixMilli(), id, fileName)
}

func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
