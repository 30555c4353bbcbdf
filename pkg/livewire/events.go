package livewire

import (
	"encoding/json"
	"fmt"
)

// Inbound event type discriminators, as they appear on the wire.
const (
	EventCursorMove      = "cursor_move"
	EventStepProgress    = "step_progress"
	EventAddNote         = "add_note"
	EventWhiteboardDraw  = "whiteboard_draw"
	EventVoiceState      = "voice_state"
	EventLessonContext   = "lesson_context"
	EventTypingIndicator = "typing_indicator"
)

// ClientEvent is the closed set of messages a client may send. The
// server's router matches it exhaustively, so adding an event kind is
// a compile-time-checked change.
type ClientEvent interface {
	clientEvent()
}

type CursorMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StepProgress struct {
	StepNumber int  `json:"step_number"`
	Completed  bool `json:"completed"`
}

type AddNote struct {
	Content  string   `json:"content"`
	Position Position `json:"position"`
}

type WhiteboardDraw struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type LessonContext struct {
	LessonID    string `json:"lesson_id"`
	LessonTitle string `json:"lesson_title"`
}

type TypingIndicator struct {
	IsTyping bool   `json:"is_typing"`
	Location string `json:"location,omitempty"`
}

func (CursorMove) clientEvent()      {}
func (StepProgress) clientEvent()    {}
func (AddNote) clientEvent()         {}
func (WhiteboardDraw) clientEvent()  {}
func (VoiceState) clientEvent()      {}
func (LessonContext) clientEvent()   {}
func (TypingIndicator) clientEvent() {}

// UnknownEventError reports an unrecognized type discriminator. The
// connection stays open; the server just logs it.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// DecodeClientEvent parses one inbound frame into its typed variant.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event envelope: %w", err)
	}

	switch env.Type {
	case EventCursorMove:
		var ev CursorMove
		return ev, json.Unmarshal(data, &ev)
	case EventStepProgress:
		var ev StepProgress
		return ev, json.Unmarshal(data, &ev)
	case EventAddNote:
		var ev AddNote
		return ev, json.Unmarshal(data, &ev)
	case EventWhiteboardDraw:
		var ev WhiteboardDraw
		return ev, json.Unmarshal(data, &ev)
	case EventVoiceState:
		var ev VoiceState
		return ev, json.Unmarshal(data, &ev)
	case EventLessonContext:
		var ev LessonContext
		return ev, json.Unmarshal(data, &ev)
	case EventTypingIndicator:
		var ev TypingIndicator
		return ev, json.Unmarshal(data, &ev)
	default:
		return nil, &UnknownEventError{Type: env.Type}
	}
}

// EncodeClientEvent wraps a typed event in its wire envelope. Used by
// clients; the server only decodes.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	switch ev := ev.(type) {
	case CursorMove:
		return json.Marshal(struct {
			Type string `json:"type"`
			CursorMove
		}{EventCursorMove, ev})
	case StepProgress:
		return json.Marshal(struct {
			Type string `json:"type"`
			StepProgress
		}{EventStepProgress, ev})
	case AddNote:
		return json.Marshal(struct {
			Type string `json:"type"`
			AddNote
		}{EventAddNote, ev})
	case WhiteboardDraw:
		return json.Marshal(struct {
			Type string `json:"type"`
			WhiteboardDraw
		}{EventWhiteboardDraw, ev})
	case VoiceState:
		return json.Marshal(struct {
			Type string `json:"type"`
			VoiceState
		}{EventVoiceState, ev})
	case LessonContext:
		return json.Marshal(struct {
			Type string `json:"type"`
			LessonContext
		}{EventLessonContext, ev})
	case TypingIndicator:
		return json.Marshal(struct {
			Type string `json:"type"`
			TypingIndicator
		}{EventTypingIndicator, ev})
	default:
		return nil, fmt.Errorf("unencodable event %T", ev)
	}
}
