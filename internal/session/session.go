package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lessonsync-backend/pkg/livewire"
)

// The session data model is the wire model: what a participant sees in
// a snapshot is exactly what the server holds. The types are defined
// in pkg/livewire so external clients can speak the protocol; they are
// aliased here as this package's domain vocabulary.
type (
	Settings         = livewire.Settings
	Profile          = livewire.Profile
	Cursor           = livewire.Cursor
	VoiceState       = livewire.VoiceState
	Participant      = livewire.Participant
	Position         = livewire.Position
	Note             = livewire.Note
	Stroke           = livewire.Stroke
	StateSnapshot    = livewire.StateSnapshot
	ProgressSnapshot = livewire.ProgressSnapshot
	Snapshot         = livewire.Snapshot
)

// DefaultSettings is the policy for lazily created sessions; only
// MaxParticipants is deployment-configurable.
func DefaultSettings(maxParticipants int) Settings {
	return Settings{
		CursorSharing:      true,
		VoiceEnabled:       false,
		ScreenShareEnabled: false,
		MaxParticipants:    maxParticipants,
		InviteRequired:     false,
	}
}

// participantRecord pairs the wire-visible participant with the
// bookkeeping the grace period needs.
type participantRecord struct {
	Participant

	// Set when the participant disconnects; cleared on rejoin. Used to
	// decide whether the grace-period timer should still remove them.
	disconnectedAt *time.Time
}

// Session is one live collaborative context. All fields behind mu; the
// shared document is append-only plus a monotonic high-water mark, so
// concurrent updates converge regardless of arrival order.
type Session struct {
	ID        string
	CreatedBy uuid.UUID
	CreatedAt time.Time

	mu           sync.RWMutex
	settings     Settings
	participants map[uuid.UUID]*participantRecord

	currentStep    int
	completedSteps map[int]struct{}
	notes          []Note
	strokes        []Stroke
	lessonID       string
	lessonTitle    string
}

func newSession(id string, creator uuid.UUID, settings Settings, now time.Time) *Session {
	return &Session{
		ID:             id,
		CreatedBy:      creator,
		CreatedAt:      now,
		settings:       settings,
		participants:   make(map[uuid.UUID]*participantRecord),
		completedSteps: make(map[int]struct{}),
	}
}

func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Age reports how long the session has existed.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// ParticipantCount counts every present record, active or in its
// disconnect grace window. A grace record still occupies a seat so that
// a quick reconnect cannot be beaten to it by a new joiner.
func (s *Session) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

func (s *Session) ActiveParticipants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(s.participants))
	for _, rec := range s.participants {
		if rec.IsActive {
			out = append(out, rec.Participant)
		}
	}
	return out
}

// join admits a participant: a rejoin inside the grace window revives
// the existing seat, a new joiner takes a free one. The capacity check
// and the insert share one critical section, so two concurrent joiners
// cannot both take the last seat. Returns the participant view and
// whether this was a rejoin.
func (s *Session) join(userID uuid.UUID, profile Profile, now time.Time) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.participants[userID]; ok {
		rec.IsActive = true
		rec.LastActiveAt = now
		rec.Profile = profile
		rec.disconnectedAt = nil
		return rec.Participant, true, nil
	}

	if len(s.participants) >= s.settings.MaxParticipants {
		return Participant{}, false, ErrSessionFull
	}

	rec := &participantRecord{
		Participant: Participant{
			UserID:       userID,
			Profile:      profile,
			JoinedAt:     now,
			LastActiveAt: now,
			IsActive:     true,
		},
	}
	s.participants[userID] = rec
	return rec.Participant, false, nil
}

// MarkDisconnected flags a participant inactive but keeps the record
// for the grace period. Reports whether the participant was present.
func (s *Session) MarkDisconnected(userID uuid.UUID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.participants[userID]
	if !ok {
		return false
	}
	rec.IsActive = false
	t := now
	rec.disconnectedAt = &t
	return true
}

// RemoveIfDisconnected drops a participant whose grace period elapsed.
// A rejoin in the meantime clears disconnectedAt and keeps the record.
// Returns (removed, empty) where empty means the session has no
// participants left.
func (s *Session) RemoveIfDisconnected(userID uuid.UUID, since time.Time) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.participants[userID]
	if !ok {
		return false, len(s.participants) == 0
	}
	if rec.IsActive || rec.disconnectedAt == nil || rec.disconnectedAt.After(since) {
		return false, false
	}
	delete(s.participants, userID)
	return true, len(s.participants) == 0
}

// touch stamps activity for an active participant. Every routed event
// goes through here first.
func (s *Session) touch(userID uuid.UUID, now time.Time) (*participantRecord, error) {
	rec, ok := s.participants[userID]
	if !ok || !rec.IsActive {
		return nil, ErrNotParticipant
	}
	rec.LastActiveAt = now
	return rec, nil
}

// Touch validates the sender and stamps last activity, for events that
// mutate nothing server-side (typing, voice relay).
func (s *Session) Touch(userID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.touch(userID, now)
	return err
}

// SetCursor applies a last-write-wins cursor update. Dropped with
// ErrCursorDisabled when the session has cursor sharing off.
func (s *Session) SetCursor(userID uuid.UUID, x, y float64, now time.Time) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settings.CursorSharing {
		return Cursor{}, ErrCursorDisabled
	}
	rec, err := s.touch(userID, now)
	if err != nil {
		return Cursor{}, err
	}
	c := Cursor{X: x, Y: y, UpdatedAt: now}
	rec.Cursor = &c
	return c, nil
}

// ApplyStepProgress folds a step_progress event into the shared state.
// Completion is sticky: completed=false never removes a step, and the
// high-water mark never regresses, so any arrival order converges.
func (s *Session) ApplyStepProgress(userID uuid.UUID, step int, completed bool, now time.Time) (ProgressSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.touch(userID, now)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	if completed {
		s.completedSteps[step] = struct{}{}
	}
	if step > s.currentStep {
		s.currentStep = step
	}
	stepCopy := step
	rec.CurrentStep = &stepCopy

	return ProgressSnapshot{
		CurrentStep:    s.currentStep,
		CompletedSteps: s.sortedCompletedLocked(),
	}, nil
}

// AddNote appends an immutable note with a server-synthesized id.
func (s *Session) AddNote(userID uuid.UUID, content string, pos Position, now time.Time) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.touch(userID, now); err != nil {
		return Note{}, err
	}
	n := Note{
		ID:        newEntryID("note", now),
		Content:   content,
		AuthorID:  userID,
		CreatedAt: now,
		Position:  pos,
	}
	s.notes = append(s.notes, n)
	return n, nil
}

// AddStroke appends an immutable whiteboard stroke.
func (s *Session) AddStroke(userID uuid.UUID, kind string, payload json.RawMessage, now time.Time) (Stroke, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.touch(userID, now); err != nil {
		return Stroke{}, err
	}
	st := Stroke{
		ID:        newEntryID("stroke", now),
		Kind:      kind,
		Payload:   payload,
		AuthorID:  userID,
		CreatedAt: now,
	}
	s.strokes = append(s.strokes, st)
	return st, nil
}

// SetVoiceState records the sender's voice flags for presence display.
func (s *Session) SetVoiceState(userID uuid.UUID, muted, talking bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.touch(userID, now)
	if err != nil {
		return err
	}
	rec.Voice = &VoiceState{Muted: muted, Talking: talking}
	return nil
}

// SetLessonContext sets the lesson metadata. Creator-only; callers drop
// ErrNotCreator silently per the authorization policy.
func (s *Session) SetLessonContext(userID uuid.UUID, lessonID, lessonTitle string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != s.CreatedBy {
		return ErrNotCreator
	}
	if _, err := s.touch(userID, now); err != nil {
		return err
	}
	s.lessonID = lessonID
	s.lessonTitle = lessonTitle
	return nil
}

// Snapshot returns the full join-time view: participant list, shared
// document, and settings.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]Participant, 0, len(s.participants))
	for _, rec := range s.participants {
		participants = append(participants, rec.Participant)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	notes := make([]Note, len(s.notes))
	copy(notes, s.notes)
	strokes := make([]Stroke, len(s.strokes))
	copy(strokes, s.strokes)

	return Snapshot{
		SessionID:    s.ID,
		CreatedBy:    s.CreatedBy,
		Participants: participants,
		State: StateSnapshot{
			CurrentStep:    s.currentStep,
			CompletedSteps: s.sortedCompletedLocked(),
			Notes:          notes,
			Strokes:        strokes,
			LessonID:       s.lessonID,
			LessonTitle:    s.lessonTitle,
		},
		Settings: s.settings,
	}
}

func (s *Session) sortedCompletedLocked() []int {
	steps := make([]int, 0, len(s.completedSteps))
	for step := range s.completedSteps {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

// newEntryID builds a time-ordered id with a random suffix so two
// participants appending in the same instant cannot collide.
func newEntryID(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixNano(), uuid.NewString()[:8])
}
