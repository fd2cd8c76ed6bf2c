package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// InviteRepository manages invite persistence.
type InviteRepository interface {
	Create(ctx context.Context, invite *domain.Invite) error
	GetByToken(ctx context.Context, token string) (*domain.Invite, error)
	List(ctx context.Context, limit, offset int) ([]domain.Invite, error)
	Delete(ctx context.Context, id string) error
}

type inviteRepository struct {
	pool *pgxpool.Pool
}

// NewInviteRepository constructs repository.
func NewInviteRepository(pool *pgxpool.Pool) InviteRepository {
	return &inviteRepository{pool: pool}
}

func (r *inviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	const query = `
        INSERT INTO invites (email, role, invited_by, token, expires_at)
        VALUES (lower($1),$2,$3,$4,$5)
        RETURNING id, email, created_at`
	return r.pool.QueryRow(ctx, query,
		invite.Email,
		invite.Role,
		invite.InvitedBy,
		invite.Token,
		invite.ExpiresAt,
	).Scan(&invite.ID, &invite.Email, &invite.CreatedAt)
}

// Delete removes an invite that was never used.
func (r *inviteRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM invites WHERE id=$1 AND used_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *inviteRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	const query = `
        SELECT id, email, role, invited_by, token, created_at, expires_at, used_at
        FROM invites WHERE token=$1`
	var invite domain.Invite
	if err := r.pool.QueryRow(ctx, query, token).Scan(
		&invite.ID,
		&invite.Email,
		&invite.Role,
		&invite.InvitedBy,
		&invite.Token,
		&invite.CreatedAt,
		&invite.ExpiresAt,
		&invite.UsedAt,
	); err != nil {
		return nil, err
	}
	return &invite, nil
}

// List returns invites newest first. Tokens are not selected.
func (r *inviteRepository) List(ctx context.Context, limit, offset int) ([]domain.Invite, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, email, role, invited_by, created_at, expires_at, used_at
        FROM invites ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Invite{}
	for rows.Next() {
		var invite domain.Invite
		if err := rows.Scan(
			&invite.ID,
			&invite.Email,
			&invite.Role,
			&invite.InvitedBy,
			&invite.CreatedAt,
			&invite.ExpiresAt,
			&invite.UsedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, invite)
	}
	return result, rows.Err()
}
