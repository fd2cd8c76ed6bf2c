package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cozycabin/cozycabin/internal/auth"
	"github.com/cozycabin/cozycabin/internal/config"
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/repository"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

// AuthService coordinates registration, login and profile maintenance.
type AuthService struct {
	profiles   repository.ProfileRepository
	invites    repository.InviteRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	ProfileRepo repository.ProfileRepository
	InviteRepo  repository.InviteRepository
}

// SignUpInput carries a registration request. InviteToken is optional.
type SignUpInput struct {
	Email       string
	Password    string
	FullName    string
	InviteToken string
}

// ProfileUpdate changes self-service profile fields.
type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
}

// AdminProfileUpdate changes fields only an admin may touch.
type AdminProfileUpdate struct {
	Role     *domain.Role
	IsActive *bool
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		profiles:   deps.ProfileRepo,
		invites:    deps.InviteRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		now:        time.Now,
	}
}

// SignUp creates a profile and returns a session. Without an invite the
// profile is a customer; with a valid invite for the same e-mail it takes
// the invite's role and the invite is consumed.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (*domain.Session, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": "must be a valid address"})
	}
	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"password": err.Error()})
		}
		return nil, apperrors.NewInternalError(err)
	}

	profile := &domain.Profile{
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		FullName:     strings.TrimSpace(input.FullName),
		IsActive:     true,
	}

	token := strings.TrimSpace(input.InviteToken)
	if token == "" {
		err = s.profiles.Create(ctx, profile)
	} else {
		var invite *domain.Invite
		invite, err = s.usableInvite(ctx, token, email)
		if err != nil {
			return nil, err
		}
		profile.Role = invite.Role
		err = s.profiles.CreateWithInvite(ctx, profile, invite.ID)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInviteUnavailable):
			return nil, apperrors.NewConflict("invite already used or expired", nil)
		case isUniqueViolation(err):
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return s.issueSession(profile)
}

// SignIn authenticates by e-mail and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	profile, err := s.profiles.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(profile.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !profile.IsActive {
		return nil, apperrors.NewForbidden("account disabled")
	}
	return s.issueSession(profile)
}

// Me reloads the caller's profile.
func (s *AuthService) Me(ctx context.Context, actor *domain.Profile) (*domain.Profile, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return s.loadProfile(ctx, actor.ID)
}

// UpdateOwnProfile changes the caller's display fields.
func (s *AuthService) UpdateOwnProfile(ctx context.Context, actor *domain.Profile, update ProfileUpdate) (*domain.Profile, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	profile, err := s.loadProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if update.FullName != nil {
		profile.FullName = strings.TrimSpace(*update.FullName)
	}
	if update.AvatarURL != nil {
		if url := strings.TrimSpace(*update.AvatarURL); url == "" {
			profile.AvatarURL = nil
		} else {
			profile.AvatarURL = &url
		}
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, apperrors.MapError(err)
	}
	return profile, nil
}

// AdminUpdateProfile changes the role or active flag of any profile.
// Admins cannot demote or deactivate themselves.
func (s *AuthService) AdminUpdateProfile(ctx context.Context, actor *domain.Profile, profileID string, update AdminProfileUpdate) (*domain.Profile, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if update.Role != nil && !update.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *update.Role})
	}
	if profileID == actor.ID {
		if (update.Role != nil && *update.Role != domain.RoleAdmin) || (update.IsActive != nil && !*update.IsActive) {
			return nil, apperrors.NewConflict("admins cannot demote or deactivate themselves", nil)
		}
	}
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if update.Role != nil {
		profile.Role = *update.Role
	}
	if update.IsActive != nil {
		profile.IsActive = *update.IsActive
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, apperrors.MapError(err)
	}
	return profile, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) usableInvite(ctx context.Context, token, email string) (*domain.Invite, error) {
	invite, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("invite is invalid or expired", map[string]any{"invite_token": "unknown"})
		}
		return nil, apperrors.MapError(err)
	}
	if !invite.Usable(s.now()) {
		return nil, apperrors.NewValidationError("invite is invalid or expired", map[string]any{"invite_token": "expired or used"})
	}
	if !strings.EqualFold(invite.Email, email) {
		return nil, apperrors.NewValidationError("invite was issued for a different email", map[string]any{"invite_token": "email mismatch"})
	}
	return invite, nil
}

func (s *AuthService) loadProfile(ctx context.Context, id string) (*domain.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("profile", map[string]any{"profile_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return profile, nil
}

func (s *AuthService) issueSession(profile *domain.Profile) (*domain.Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(profile)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Session{Token: token, ExpiresAt: exp, Profile: *profile}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
