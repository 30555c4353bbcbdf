package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BanRepo reads the moderation denylist. Moderation tooling elsewhere
// on the platform writes session_ban:<user_id> keys with a TTL.
type BanRepo struct {
	redis *redis.Client
}

func NewBanRepo(redisClient *redis.Client) *BanRepo {
	return &BanRepo{redis: redisClient}
}

func (r *BanRepo) IsBanned(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := r.redis.Get(ctx, "session_ban:"+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
