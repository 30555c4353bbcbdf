package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the durable identity record backing a participant profile.
// Account management lives elsewhere; this subsystem only reads it.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	AvatarURL   *string    `json:"avatar_url"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}
