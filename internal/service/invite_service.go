package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/events"
	"github.com/cozycabin/cozycabin/internal/repository"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// InviteMailer delivers invite links.
type InviteMailer interface {
	SendInvite(to string, role domain.Role, signupURL string, expiresAt time.Time) error
}

// InviteService issues and verifies staff invites.
type InviteService struct {
	invites    repository.InviteRepository
	profiles   repository.ProfileRepository
	mailer     InviteMailer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	siteURL    string
	ttl        time.Duration
	now        func() time.Time
}

// InviteDependencies bundles collaborators for invite service.
type InviteDependencies struct {
	InviteRepo  repository.InviteRepository
	ProfileRepo repository.ProfileRepository
	Mailer      InviteMailer
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	SiteURL     string
	TTL         time.Duration
}

// NewInviteService constructs the service.
func NewInviteService(deps InviteDependencies) *InviteService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &InviteService{
		invites:    deps.InviteRepo,
		profiles:   deps.ProfileRepo,
		mailer:     deps.Mailer,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		siteURL:    strings.TrimRight(deps.SiteURL, "/"),
		ttl:        ttl,
		now:        time.Now,
	}
}

// CreateInvite records a new invite with a server generated token.
func (s *InviteService) CreateInvite(ctx context.Context, actor *domain.Profile, email string, role domain.Role) (*domain.Invite, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": "must be a valid address"})
	}
	if !domain.IsInvitableRole(role) {
		return nil, apperrors.NewValidationError("role must be admin or agent", map[string]any{"role": role})
	}
	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("a profile with this email already exists", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	invite := &domain.Invite{
		Email:     email,
		Role:      role,
		InvitedBy: actor.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, apperrors.MapError(err)
	}
	publish(ctx, s.dispatcher, events.Event{
		Type:    events.EventInviteCreated,
		Actor:   actorOf(actor),
		Payload: events.InviteCreatedPayload{InviteID: invite.ID, Email: invite.Email, Role: invite.Role},
	})
	return invite, nil
}

// SendInvite creates an invite and e-mails its sign-up link.
func (s *InviteService) SendInvite(ctx context.Context, actor *domain.Profile, email string, role domain.Role) (*domain.Invite, error) {
	invite, err := s.CreateInvite(ctx, actor, email, role)
	if err != nil {
		return nil, err
	}
	if s.mailer == nil {
		return invite, nil
	}
	if err := s.mailer.SendInvite(invite.Email, invite.Role, s.SignupURL(invite.Token), invite.ExpiresAt); err != nil {
		s.logger.Error("invite mail failed", zap.String("invite_id", invite.ID), zap.Error(err))
		// nobody received the token, so a retry must start from scratch
		if delErr := s.invites.Delete(context.WithoutCancel(ctx), invite.ID); delErr != nil {
			s.logger.Error("remove unsent invite", zap.String("invite_id", invite.ID), zap.Error(delErr))
		}
		return nil, apperrors.NewUpstreamError("failed to send invite email", err)
	}
	s.logger.Info("invite sent", zap.String("invite_id", invite.ID), zap.String("role", string(invite.Role)))
	return invite, nil
}

// VerifyInvite reports whether token names an unused, unexpired invite.
// Unknown tokens are simply invalid.
func (s *InviteService) VerifyInvite(ctx context.Context, token string) (domain.InviteVerification, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.InviteVerification{}, nil
	}
	invite, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InviteVerification{}, nil
		}
		return domain.InviteVerification{}, apperrors.MapError(err)
	}
	if !invite.Usable(s.now()) {
		return domain.InviteVerification{}, nil
	}
	return domain.InviteVerification{IsValid: true, Email: invite.Email, Role: invite.Role}, nil
}

// ListInvites returns invites newest first. Admin only.
func (s *InviteService) ListInvites(ctx context.Context, actor *domain.Profile, limit, offset int) ([]domain.Invite, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	invites, err := s.invites.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return invites, nil
}

// SignupURL is the link sent to invitees.
func (s *InviteService) SignupURL(token string) string {
	return s.siteURL + "/signup?invite=" + url.QueryEscape(token)
}
