package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// ErrInviteUnavailable is returned when an invite was consumed or
// expired between verification and sign-up.
var ErrInviteUnavailable = errors.New("invite already used or expired")

// ProfileRepository defines persistence access for account profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	CreateWithInvite(ctx context.Context, profile *domain.Profile, inviteID string) error
	Update(ctx context.Context, profile *domain.Profile) error
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a Postgres-backed implementation.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const insertProfile = `
    INSERT INTO profiles (email, password_hash, role, full_name, avatar_url, is_active)
    VALUES (lower($1), $2, $3, $4, $5, $6)
    RETURNING id, email, created_at, updated_at`

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	return r.pool.QueryRow(ctx, insertProfile,
		profile.Email,
		profile.PasswordHash,
		profile.Role,
		profile.FullName,
		profile.AvatarURL,
		profile.IsActive,
	).Scan(&profile.ID, &profile.Email, &profile.CreatedAt, &profile.UpdatedAt)
}

// CreateWithInvite consumes the invite and creates the profile in one
// transaction, so an invite can be used exactly once.
func (r *profileRepository) CreateWithInvite(ctx context.Context, profile *domain.Profile, inviteID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
            UPDATE invites SET used_at=NOW()
            WHERE id=$1 AND used_at IS NULL AND expires_at > NOW()`, inviteID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrInviteUnavailable
		}
		return tx.QueryRow(ctx, insertProfile,
			profile.Email,
			profile.PasswordHash,
			profile.Role,
			profile.FullName,
			profile.AvatarURL,
			profile.IsActive,
		).Scan(&profile.ID, &profile.Email, &profile.CreatedAt, &profile.UpdatedAt)
	})
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	const query = `
        UPDATE profiles SET full_name=$1, avatar_url=$2, role=$3, is_active=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		profile.FullName,
		profile.AvatarURL,
		profile.Role,
		profile.IsActive,
		profile.ID,
	).Scan(&profile.UpdatedAt)
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const query = `
        SELECT id, email, password_hash, role, full_name, avatar_url, is_active, created_at, updated_at
        FROM profiles WHERE id=$1`
	return scanProfile(r.pool.QueryRow(ctx, query, id))
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	const query = `
        SELECT id, email, password_hash, role, full_name, avatar_url, is_active, created_at, updated_at
        FROM profiles WHERE email=lower($1)`
	return scanProfile(r.pool.QueryRow(ctx, query, email))
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var profile domain.Profile
	if err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.PasswordHash,
		&profile.Role,
		&profile.FullName,
		&profile.AvatarURL,
		&profile.IsActive,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}
