package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSession(t *testing.T, creator uuid.UUID) *Session {
	t.Helper()
	now := time.Now()
	s := newSession("sess-1", creator, DefaultSettings(4), now)
	s.join(creator, Profile{ID: creator, DisplayName: "Creator"}, now)
	return s
}

func TestApplyStepProgress_ConvergesRegardlessOfOrder(t *testing.T) {
	// Two orderings of the same events must produce the same state.
	orders := [][]struct {
		step      int
		completed bool
	}{
		{{3, true}, {1, true}, {2, false}},
		{{2, false}, {3, true}, {1, true}},
	}

	for i, order := range orders {
		creator := uuid.New()
		s := newTestSession(t, creator)

		var last ProgressSnapshot
		for _, ev := range order {
			snap, err := s.ApplyStepProgress(creator, ev.step, ev.completed, time.Now())
			if err != nil {
				t.Fatalf("order %d: ApplyStepProgress failed: %v", i, err)
			}
			last = snap
		}

		if last.CurrentStep != 3 {
			t.Errorf("order %d: expected current step 3, got %d", i, last.CurrentStep)
		}
		if len(last.CompletedSteps) != 2 || last.CompletedSteps[0] != 1 || last.CompletedSteps[1] != 3 {
			t.Errorf("order %d: expected completed steps [1 3], got %v", i, last.CompletedSteps)
		}
	}
}

func TestApplyStepProgress_CompletionIsSticky(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()

	if _, err := s.ApplyStepProgress(creator, 2, true, now); err != nil {
		t.Fatalf("ApplyStepProgress failed: %v", err)
	}
	// completed=false for an already-completed step must not remove it.
	snap, err := s.ApplyStepProgress(creator, 2, false, now)
	if err != nil {
		t.Fatalf("ApplyStepProgress failed: %v", err)
	}

	if len(snap.CompletedSteps) != 1 || snap.CompletedSteps[0] != 2 {
		t.Errorf("expected completed steps [2], got %v", snap.CompletedSteps)
	}
}

func TestApplyStepProgress_CurrentStepNeverRegresses(t *testing.T) {
	creator := uuid.New()
	other := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()
	s.join(other, Profile{ID: other, DisplayName: "Other"}, now)

	if _, err := s.ApplyStepProgress(creator, 3, true, now); err != nil {
		t.Fatalf("ApplyStepProgress failed: %v", err)
	}
	snap, err := s.ApplyStepProgress(other, 1, true, now)
	if err != nil {
		t.Fatalf("ApplyStepProgress failed: %v", err)
	}

	if snap.CurrentStep != 3 {
		t.Errorf("expected current step to stay at 3, got %d", snap.CurrentStep)
	}
	if len(snap.CompletedSteps) != 2 {
		t.Errorf("expected completed steps [1 3], got %v", snap.CompletedSteps)
	}

	// But the sender's own per-participant step tracks their last report.
	participants := s.Snapshot().Participants
	for _, p := range participants {
		if p.UserID == other {
			if p.CurrentStep == nil || *p.CurrentStep != 1 {
				t.Errorf("expected participant current step 1, got %v", p.CurrentStep)
			}
		}
	}
}

func TestApplyStepProgress_RejectsNonParticipant(t *testing.T) {
	s := newTestSession(t, uuid.New())

	if _, err := s.ApplyStepProgress(uuid.New(), 1, true, time.Now()); err != ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestAddNote_AppendOnly(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()

	n1, err := s.AddNote(creator, "first", Position{X: 1, Y: 2}, now)
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	n2, err := s.AddNote(creator, "second", Position{X: 3, Y: 4}, now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}

	if n1.ID == n2.ID {
		t.Errorf("expected distinct note ids, both are %q", n1.ID)
	}
	if !strings.HasPrefix(n1.ID, "note_") {
		t.Errorf("expected note id prefix, got %q", n1.ID)
	}
	if n1.AuthorID != creator {
		t.Errorf("expected author %s, got %s", creator, n1.AuthorID)
	}

	notes := s.Snapshot().State.Notes
	if len(notes) != 2 || notes[0].Content != "first" || notes[1].Content != "second" {
		t.Errorf("expected notes in append order, got %+v", notes)
	}
}

func TestAddStroke_PayloadOpaque(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)

	payload := json.RawMessage(`{"points":[[0,0],[1,1]],"color":"#ff0000"}`)
	st, err := s.AddStroke(creator, "freehand", payload, time.Now())
	if err != nil {
		t.Fatalf("AddStroke failed: %v", err)
	}

	if st.Kind != "freehand" {
		t.Errorf("expected kind freehand, got %q", st.Kind)
	}
	if string(st.Payload) != string(payload) {
		t.Errorf("payload altered: got %s", st.Payload)
	}
	if !strings.HasPrefix(st.ID, "stroke_") {
		t.Errorf("expected stroke id prefix, got %q", st.ID)
	}
}

func TestSetCursor_DisabledBySettings(t *testing.T) {
	creator := uuid.New()
	now := time.Now()
	settings := DefaultSettings(4)
	settings.CursorSharing = false
	s := newSession("sess-1", creator, settings, now)
	s.join(creator, Profile{ID: creator, DisplayName: "Creator"}, now)

	if _, err := s.SetCursor(creator, 0.5, 0.5, now); err != ErrCursorDisabled {
		t.Errorf("expected ErrCursorDisabled, got %v", err)
	}
}

func TestSetCursor_LastWriteWins(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()

	if _, err := s.SetCursor(creator, 1, 1, now); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	c, err := s.SetCursor(creator, 2, 3, now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	if c.X != 2 || c.Y != 3 {
		t.Errorf("expected cursor (2,3), got (%v,%v)", c.X, c.Y)
	}
}

func TestSetLessonContext_CreatorOnly(t *testing.T) {
	creator := uuid.New()
	other := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()
	s.join(other, Profile{ID: other, DisplayName: "Other"}, now)

	if err := s.SetLessonContext(other, "lesson-9", "Algebra", now); err != ErrNotCreator {
		t.Errorf("expected ErrNotCreator, got %v", err)
	}
	if err := s.SetLessonContext(creator, "lesson-9", "Algebra", now); err != nil {
		t.Fatalf("SetLessonContext failed: %v", err)
	}

	state := s.Snapshot().State
	if state.LessonID != "lesson-9" || state.LessonTitle != "Algebra" {
		t.Errorf("expected lesson context set, got %q %q", state.LessonID, state.LessonTitle)
	}
}

func TestMarkDisconnected_KeepsRecordForGrace(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()

	if !s.MarkDisconnected(creator, now) {
		t.Fatal("MarkDisconnected reported participant missing")
	}
	if s.ParticipantCount() != 1 {
		t.Errorf("expected record to survive disconnect, count=%d", s.ParticipantCount())
	}
	if len(s.ActiveParticipants()) != 0 {
		t.Errorf("expected no active participants after disconnect")
	}

	// Rejoin within the grace window revives the same record.
	p, rejoined, err := s.join(creator, Profile{ID: creator, DisplayName: "Creator"}, now.Add(time.Second))
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !rejoined {
		t.Error("expected rejoin to reuse the existing record")
	}
	if !p.IsActive {
		t.Error("expected revived participant to be active")
	}
}

func TestRemoveIfDisconnected(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		setup       func(s *Session, userID uuid.UUID)
		since       time.Time
		wantRemoved bool
	}{
		{
			name: "removes after grace elapsed",
			setup: func(s *Session, userID uuid.UUID) {
				s.MarkDisconnected(userID, now)
			},
			since:       now,
			wantRemoved: true,
		},
		{
			name: "keeps active participant",
			setup: func(s *Session, userID uuid.UUID) {
			},
			since:       now,
			wantRemoved: false,
		},
		{
			name: "keeps participant who rejoined",
			setup: func(s *Session, userID uuid.UUID) {
				s.MarkDisconnected(userID, now)
				s.join(userID, Profile{ID: userID}, now.Add(time.Second))
			},
			since:       now,
			wantRemoved: false,
		},
		{
			name: "keeps participant who re-disconnected later",
			setup: func(s *Session, userID uuid.UUID) {
				s.MarkDisconnected(userID, now)
				s.join(userID, Profile{ID: userID}, now.Add(time.Second))
				s.MarkDisconnected(userID, now.Add(2*time.Second))
			},
			since:       now,
			wantRemoved: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			userID := uuid.New()
			s := newTestSession(t, userID)
			tc.setup(s, userID)

			removed, _ := s.RemoveIfDisconnected(userID, tc.since)
			if removed != tc.wantRemoved {
				t.Errorf("expected removed=%t, got %t", tc.wantRemoved, removed)
			}
		})
	}
}

func TestSnapshot_ParticipantsOrderedByJoinTime(t *testing.T) {
	creator := uuid.New()
	now := time.Now()
	s := newSession("sess-1", creator, DefaultSettings(4), now)

	s.join(creator, Profile{ID: creator, DisplayName: "A"}, now)
	second := uuid.New()
	s.join(second, Profile{ID: second, DisplayName: "B"}, now.Add(time.Second))
	third := uuid.New()
	s.join(third, Profile{ID: third, DisplayName: "C"}, now.Add(2*time.Second))

	snap := s.Snapshot()
	if len(snap.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(snap.Participants))
	}
	got := []string{snap.Participants[0].Profile.DisplayName, snap.Participants[1].Profile.DisplayName, snap.Participants[2].Profile.DisplayName}
	if got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("expected join order A B C, got %v", got)
	}
	if snap.CreatedBy != creator {
		t.Errorf("expected creator %s, got %s", creator, snap.CreatedBy)
	}
}

func TestSnapshot_IsolatedFromLaterMutation(t *testing.T) {
	creator := uuid.New()
	s := newTestSession(t, creator)
	now := time.Now()

	if _, err := s.AddNote(creator, "before", Position{}, now); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	snap := s.Snapshot()

	if _, err := s.AddNote(creator, "after", Position{}, now.Add(time.Millisecond)); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}

	if len(snap.State.Notes) != 1 {
		t.Errorf("snapshot mutated after capture: %d notes", len(snap.State.Notes))
	}
}
