// Package livewire defines the wire vocabulary of the live lesson
// protocol: the JSON data model both sides exchange, the closed set of
// events a client may send, and the closed set of messages the server
// emits. It has no server-side dependencies so external programs can
// import it together with liveclient.
package livewire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Settings controls what a live session allows.
type Settings struct {
	CursorSharing      bool `json:"cursor_sharing"`
	VoiceEnabled       bool `json:"voice_enabled"`
	ScreenShareEnabled bool `json:"screen_share_enabled"`
	MaxParticipants    int  `json:"max_participants"`
	InviteRequired     bool `json:"invite_required"`
}

// Profile is the display identity attached to a participant. It is
// resolved once at join time; the session never writes back to it.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

type Cursor struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoiceState doubles as a client event: what a participant sends is
// exactly what the server stores and shows in their presence record.
type VoiceState struct {
	Muted   bool `json:"muted"`
	Talking bool `json:"talking"`
}

// Participant is the presence record of one session member as clients
// see it.
type Participant struct {
	UserID       uuid.UUID   `json:"user_id"`
	Profile      Profile     `json:"profile"`
	JoinedAt     time.Time   `json:"joined_at"`
	LastActiveAt time.Time   `json:"last_active_at"`
	Cursor       *Cursor     `json:"cursor,omitempty"`
	CurrentStep  *int        `json:"current_step,omitempty"`
	IsActive     bool        `json:"is_active"`
	Voice        *VoiceState `json:"voice,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Note is immutable once appended; there is no update or delete.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  uuid.UUID `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Position  Position  `json:"position"`
}

// Stroke is immutable once appended. Payload is opaque to the server.
type Stroke struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	AuthorID  uuid.UUID       `json:"author_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// StateSnapshot is the JSON view of the shared document, sent whole to
// every joining connection instead of replaying history.
type StateSnapshot struct {
	CurrentStep    int      `json:"current_step"`
	CompletedSteps []int    `json:"completed_steps"`
	Notes          []Note   `json:"notes"`
	Strokes        []Stroke `json:"strokes"`
	LessonID       string   `json:"lesson_id,omitempty"`
	LessonTitle    string   `json:"lesson_title,omitempty"`
}

// ProgressSnapshot is the convergent result of a step_progress event:
// the deduplicated completed set and the high-water mark.
type ProgressSnapshot struct {
	CurrentStep    int   `json:"current_step"`
	CompletedSteps []int `json:"completed_steps"`
}

// Snapshot is the full synchronization point delivered on join.
type Snapshot struct {
	SessionID    string        `json:"session_id"`
	CreatedBy    uuid.UUID     `json:"created_by"`
	Participants []Participant `json:"participants"`
	State        StateSnapshot `json:"state"`
	Settings     Settings      `json:"settings"`
}
