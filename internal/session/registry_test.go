package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRegistry(maxParticipants int) *Registry {
	return NewRegistry(DefaultSettings(maxParticipants))
}

func TestJoin_LazyCreation(t *testing.T) {
	r := newTestRegistry(4)
	userID := uuid.New()
	now := time.Now()

	s, info, err := r.Join("lesson-42", userID, Profile{ID: userID, DisplayName: "First"}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !info.Created {
		t.Error("expected first join to create the session")
	}
	if s.CreatedBy != userID {
		t.Errorf("expected first joiner to be creator, got %s", s.CreatedBy)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 session, got %d", r.Count())
	}

	// Second joiner attaches to the same session.
	other := uuid.New()
	s2, info2, err := r.Join("lesson-42", other, Profile{ID: other, DisplayName: "Second"}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if info2.Created {
		t.Error("expected second join not to create a session")
	}
	if s2 != s {
		t.Error("expected both joins to land in the same session")
	}
}

func TestJoin_SessionFull(t *testing.T) {
	r := newTestRegistry(2)
	now := time.Now()

	first := uuid.New()
	second := uuid.New()
	if _, _, err := r.Join("full", first, Profile{ID: first}, now); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, _, err := r.Join("full", second, Profile{ID: second}, now); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if _, _, err := r.Join("full", uuid.New(), Profile{}, now); err != ErrSessionFull {
		t.Errorf("expected ErrSessionFull, got %v", err)
	}

	// Nobody was evicted to make room.
	s, _ := r.Get("full")
	if s.ParticipantCount() != 2 {
		t.Errorf("expected 2 participants, got %d", s.ParticipantCount())
	}
}

func TestJoin_ConcurrentJoinersNeverExceedCapacity(t *testing.T) {
	const seats = 4
	const contenders = 16

	r := newTestRegistry(seats)
	now := time.Now()

	var wg sync.WaitGroup
	var admitted, refused atomic.Int32
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := uuid.New()
			_, _, err := r.Join("crowded", userID, Profile{ID: userID}, now)
			switch err {
			case nil:
				admitted.Add(1)
			case ErrSessionFull:
				refused.Add(1)
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != seats {
		t.Errorf("expected exactly %d admitted, got %d", seats, admitted.Load())
	}
	if refused.Load() != contenders-seats {
		t.Errorf("expected %d refused, got %d", contenders-seats, refused.Load())
	}
	s, _ := r.Get("crowded")
	if s.ParticipantCount() != seats {
		t.Errorf("expected %d seated participants, got %d", seats, s.ParticipantCount())
	}
}

func TestJoin_RejoinReusesSeat(t *testing.T) {
	r := newTestRegistry(2)
	now := time.Now()

	first := uuid.New()
	second := uuid.New()
	s, _, err := r.Join("lesson", first, Profile{ID: first}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, _, err := r.Join("lesson", second, Profile{ID: second}, now); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// A disconnected participant still holds their seat, so a stranger
	// is refused while the original can come back.
	s.MarkDisconnected(first, now)

	if _, _, err := r.Join("lesson", uuid.New(), Profile{}, now); err != ErrSessionFull {
		t.Errorf("expected ErrSessionFull while seat is in grace, got %v", err)
	}

	_, info, err := r.Join("lesson", first, Profile{ID: first}, now.Add(time.Second))
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !info.Rejoined {
		t.Error("expected rejoin to be flagged")
	}
}

func TestRemoveParticipantAfterGrace(t *testing.T) {
	r := newTestRegistry(4)
	now := time.Now()

	userID := uuid.New()
	s, _, err := r.Join("lesson", userID, Profile{ID: userID}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	s.MarkDisconnected(userID, now)

	removed, deleted := r.RemoveParticipantAfterGrace("lesson", userID, now)
	if !removed {
		t.Error("expected participant to be removed after grace")
	}
	if !deleted {
		t.Error("expected empty session to be deleted")
	}
	if r.Count() != 0 {
		t.Errorf("expected registry to be empty, got %d sessions", r.Count())
	}
}

func TestRemoveParticipantAfterGrace_RejoinCancels(t *testing.T) {
	r := newTestRegistry(4)
	now := time.Now()

	userID := uuid.New()
	s, _, err := r.Join("lesson", userID, Profile{ID: userID}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	s.MarkDisconnected(userID, now)

	// The participant came back before the timer fired.
	if _, _, err := r.Join("lesson", userID, Profile{ID: userID}, now.Add(time.Second)); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}

	removed, deleted := r.RemoveParticipantAfterGrace("lesson", userID, now)
	if removed || deleted {
		t.Errorf("expected stale grace timer to be a no-op, got removed=%t deleted=%t", removed, deleted)
	}
	if r.Count() != 1 {
		t.Errorf("expected session to survive, got %d sessions", r.Count())
	}
}

func TestSweep_ExpiresOverAgeSessions(t *testing.T) {
	r := newTestRegistry(4)
	start := time.Now()

	userID := uuid.New()
	if _, _, err := r.Join("old", userID, Profile{ID: userID}, start); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	report := r.Sweep(start.Add(5*time.Hour), 4*time.Hour, 10*time.Minute)

	if len(report.ExpiredSessions) != 1 || report.ExpiredSessions[0] != "old" {
		t.Errorf("expected session old to expire, got %v", report.ExpiredSessions)
	}
	if users := report.ExpiredUsers["old"]; len(users) != 1 || users[0] != userID {
		t.Errorf("expected expired seats to be reported, got %v", users)
	}
	if r.Count() != 0 {
		t.Errorf("expected registry to be empty after expiry, got %d", r.Count())
	}
}

func TestSweep_RemovesIdleParticipants(t *testing.T) {
	r := newTestRegistry(4)
	start := time.Now()

	idle := uuid.New()
	busy := uuid.New()
	s, _, err := r.Join("lesson", idle, Profile{ID: idle}, start)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, _, err := r.Join("lesson", busy, Profile{ID: busy}, start); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Only one participant shows recent activity.
	if err := s.Touch(busy, start.Add(15*time.Minute)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	report := r.Sweep(start.Add(16*time.Minute), 4*time.Hour, 10*time.Minute)

	removed := report.RemovedParticipants["lesson"]
	if len(removed) != 1 || removed[0] != idle {
		t.Errorf("expected only idle participant removed, got %v", removed)
	}
	if len(report.EmptiedSessions) != 0 {
		t.Errorf("expected session to survive, got emptied %v", report.EmptiedSessions)
	}
	if s.ParticipantCount() != 1 {
		t.Errorf("expected 1 participant left, got %d", s.ParticipantCount())
	}
}

func TestSweep_DeletesEmptiedSessions(t *testing.T) {
	r := newTestRegistry(4)
	start := time.Now()

	userID := uuid.New()
	if _, _, err := r.Join("lesson", userID, Profile{ID: userID}, start); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	report := r.Sweep(start.Add(11*time.Minute), 4*time.Hour, 10*time.Minute)

	if len(report.EmptiedSessions) != 1 || report.EmptiedSessions[0] != "lesson" {
		t.Errorf("expected session to be emptied and deleted, got %v", report.EmptiedSessions)
	}
	if r.Count() != 0 {
		t.Errorf("expected registry to be empty, got %d", r.Count())
	}
}

func TestJoin_FreshSessionAfterRemoval(t *testing.T) {
	r := newTestRegistry(4)
	now := time.Now()

	creator := uuid.New()
	s, _, err := r.Join("lesson", creator, Profile{ID: creator}, now)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := s.AddNote(creator, "persisted?", Position{}, now); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	r.Remove("lesson")

	// Same id joined again starts from scratch with a new creator.
	newcomer := uuid.New()
	s2, info, err := r.Join("lesson", newcomer, Profile{ID: newcomer}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !info.Created {
		t.Error("expected a fresh session to be created")
	}
	if s2.CreatedBy != newcomer {
		t.Errorf("expected new creator %s, got %s", newcomer, s2.CreatedBy)
	}
	if len(s2.Snapshot().State.Notes) != 0 {
		t.Error("expected fresh session to have no notes")
	}
}
