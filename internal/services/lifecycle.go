package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lifecycleChannel = "lesson_sessions"

// LifecycleNotifier announces live-session transitions on Redis pub/sub
// so the rest of the platform (dashboards, notifications) can react.
// Delivery is fire-and-forget; session correctness never depends on it.
type LifecycleNotifier struct {
	redis *redis.Client
}

func NewLifecycleNotifier(redisClient *redis.Client) *LifecycleNotifier {
	return &LifecycleNotifier{redis: redisClient}
}

type lifecycleEvent struct {
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func (n *LifecycleNotifier) SessionCreated(sessionID string, createdBy uuid.UUID) {
	n.publish(lifecycleEvent{
		Event:     "session_created",
		SessionID: sessionID,
		UserID:    createdBy.String(),
		At:        time.Now(),
	})
}

func (n *LifecycleNotifier) SessionClosed(sessionID string, reason string) {
	n.publish(lifecycleEvent{
		Event:     "session_closed",
		SessionID: sessionID,
		Reason:    reason,
		At:        time.Now(),
	})
}

func (n *LifecycleNotifier) publish(ev lifecycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.redis.Publish(ctx, lifecycleChannel, data).Err(); err != nil {
		log.Printf("lifecycle publish failed: event=%s session=%s: %v", ev.Event, ev.SessionID, err)
	}
}
