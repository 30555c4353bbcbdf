package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lessonsync-backend/internal/models"
	"lessonsync-backend/internal/session"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, full_name, avatar_url, is_active, created_at, last_login_at
		FROM users WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.FullName, &user.AvatarURL,
		&user.IsActive, &user.CreatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ProfileByID resolves the display profile attached to a joining
// participant. Deactivated accounts resolve to an error so the gate
// refuses them.
func (r *UserRepo) ProfileByID(ctx context.Context, id uuid.UUID) (session.Profile, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return session.Profile{}, err
	}
	if !user.IsActive {
		return session.Profile{}, ErrUserInactive
	}

	return session.Profile{
		ID:          user.ID,
		DisplayName: user.FullName,
		AvatarURL:   user.AvatarURL,
	}, nil
}
