package livewire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Server-to-client message type discriminators.
const (
	MsgSessionJoined           = "session_joined"
	MsgParticipantJoined       = "participant_joined"
	MsgParticipantDisconnected = "participant_disconnected"
	MsgCursorUpdated           = "cursor_updated"
	MsgProgressUpdated         = "progress_updated"
	MsgNoteAdded               = "note_added"
	MsgWhiteboardUpdated       = "whiteboard_updated"
	MsgVoiceStateChanged       = "voice_state_changed"
	MsgLessonContextUpdated    = "lesson_context_updated"
	MsgTypingIndicator         = "typing_indicator"
)

// Application close codes in the private 4000-4999 range. A client
// that sees CloseSessionFull should not retry.
const (
	CloseSessionFull = 4409
)

// ServerMessage is the closed set of messages the server emits.
// Clients match it exhaustively when updating their local view.
type ServerMessage interface {
	serverMessage()
}

// SessionJoined carries the full snapshot that lets a joining or
// reconnecting client converge without history replay.
type SessionJoined struct {
	Type string `json:"type"`
	Snapshot
}

type ParticipantJoined struct {
	Type        string      `json:"type"`
	Participant Participant `json:"participant"`
}

type ParticipantDisconnected struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

type CursorUpdated struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
	Cursor Cursor    `json:"cursor"`
}

type ProgressUpdated struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
	ProgressSnapshot
}

type NoteAdded struct {
	Type string `json:"type"`
	Note Note   `json:"note"`
}

type WhiteboardUpdated struct {
	Type   string `json:"type"`
	Stroke Stroke `json:"stroke"`
}

type VoiceStateChanged struct {
	Type    string    `json:"type"`
	UserID  uuid.UUID `json:"user_id"`
	Muted   bool      `json:"muted"`
	Talking bool      `json:"talking"`
}

type LessonContextUpdated struct {
	Type        string    `json:"type"`
	UserID      uuid.UUID `json:"user_id"`
	LessonID    string    `json:"lesson_id"`
	LessonTitle string    `json:"lesson_title"`
}

type TypingIndicatorRelay struct {
	Type     string    `json:"type"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
	Location string    `json:"location,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

func (SessionJoined) serverMessage()           {}
func (ParticipantJoined) serverMessage()       {}
func (ParticipantDisconnected) serverMessage() {}
func (CursorUpdated) serverMessage()           {}
func (ProgressUpdated) serverMessage()         {}
func (NoteAdded) serverMessage()               {}
func (WhiteboardUpdated) serverMessage()       {}
func (VoiceStateChanged) serverMessage()       {}
func (LessonContextUpdated) serverMessage()    {}
func (TypingIndicatorRelay) serverMessage()    {}

func NewSessionJoined(snap Snapshot) SessionJoined {
	return SessionJoined{Type: MsgSessionJoined, Snapshot: snap}
}

func NewParticipantJoined(p Participant) ParticipantJoined {
	return ParticipantJoined{Type: MsgParticipantJoined, Participant: p}
}

func NewParticipantDisconnected(userID uuid.UUID) ParticipantDisconnected {
	return ParticipantDisconnected{Type: MsgParticipantDisconnected, UserID: userID}
}

func NewCursorUpdated(userID uuid.UUID, c Cursor) CursorUpdated {
	return CursorUpdated{Type: MsgCursorUpdated, UserID: userID, Cursor: c}
}

func NewProgressUpdated(userID uuid.UUID, snap ProgressSnapshot) ProgressUpdated {
	return ProgressUpdated{Type: MsgProgressUpdated, UserID: userID, ProgressSnapshot: snap}
}

func NewNoteAdded(n Note) NoteAdded {
	return NoteAdded{Type: MsgNoteAdded, Note: n}
}

func NewWhiteboardUpdated(st Stroke) WhiteboardUpdated {
	return WhiteboardUpdated{Type: MsgWhiteboardUpdated, Stroke: st}
}

func NewVoiceStateChanged(userID uuid.UUID, muted, talking bool) VoiceStateChanged {
	return VoiceStateChanged{Type: MsgVoiceStateChanged, UserID: userID, Muted: muted, Talking: talking}
}

func NewLessonContextUpdated(userID uuid.UUID, lessonID, lessonTitle string) LessonContextUpdated {
	return LessonContextUpdated{Type: MsgLessonContextUpdated, UserID: userID, LessonID: lessonID, LessonTitle: lessonTitle}
}

func NewTypingIndicator(userID uuid.UUID, isTyping bool, location string, at time.Time) TypingIndicatorRelay {
	return TypingIndicatorRelay{Type: MsgTypingIndicator, UserID: userID, IsTyping: isTyping, Location: location, SentAt: at}
}

// DecodeServerMessage parses one server frame into its typed variant.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message envelope: %w", err)
	}

	switch env.Type {
	case MsgSessionJoined:
		var m SessionJoined
		return m, json.Unmarshal(data, &m)
	case MsgParticipantJoined:
		var m ParticipantJoined
		return m, json.Unmarshal(data, &m)
	case MsgParticipantDisconnected:
		var m ParticipantDisconnected
		return m, json.Unmarshal(data, &m)
	case MsgCursorUpdated:
		var m CursorUpdated
		return m, json.Unmarshal(data, &m)
	case MsgProgressUpdated:
		var m ProgressUpdated
		return m, json.Unmarshal(data, &m)
	case MsgNoteAdded:
		var m NoteAdded
		return m, json.Unmarshal(data, &m)
	case MsgWhiteboardUpdated:
		var m WhiteboardUpdated
		return m, json.Unmarshal(data, &m)
	case MsgVoiceStateChanged:
		var m VoiceStateChanged
		return m, json.Unmarshal(data, &m)
	case MsgLessonContextUpdated:
		var m LessonContextUpdated
		return m, json.Unmarshal(data, &m)
	case MsgTypingIndicator:
		var m TypingIndicatorRelay
		return m, json.Unmarshal(data, &m)
	default:
		return nil, &UnknownEventError{Type: env.Type}
	}
}
