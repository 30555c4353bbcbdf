package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns every live session in this process. It is constructed
// once in main and threaded through the hub and sweeper; there are no
// package-level singletons.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	defaultSettings Settings
}

func NewRegistry(defaultSettings Settings) *Registry {
	return &Registry{
		sessions:        make(map[string]*Session),
		defaultSettings: defaultSettings,
	}
}

// JoinInfo describes what Join did.
type JoinInfo struct {
	Created     bool // session was lazily created for this join
	Rejoined    bool // participant record was revived within its grace window
	Participant Participant
}

// Join resolves the session for sessionID, creating it lazily with the
// joiner as creator, and admits the participant. Fails with
// ErrSessionFull when the session is at capacity; an existing
// participant is never evicted to make room.
func (r *Registry) Join(sessionID string, userID uuid.UUID, profile Profile, now time.Time) (*Session, JoinInfo, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	created := false
	if !ok {
		s = newSession(sessionID, userID, r.defaultSettings, now)
		r.sessions[sessionID] = s
		created = true
	}
	r.mu.Unlock()

	p, rejoined, err := s.join(userID, profile, now)
	if err != nil {
		return nil, JoinInfo{}, err
	}
	return s, JoinInfo{Created: created, Rejoined: rejoined, Participant: p}, nil
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// List returns the current sessions in no particular order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepReport lists what a sweep removed, for logging and telemetry.
type SweepReport struct {
	ExpiredSessions     []string
	EmptiedSessions     []string
	RemovedParticipants map[string][]uuid.UUID

	// Seats held in an expired session at deletion time. The caller
	// owns their connections and should terminate them so no socket
	// keeps writing into an orphaned session.
	ExpiredUsers map[string][]uuid.UUID
}

// Sweep enforces the two expiry rules: sessions past maxAge are deleted
// outright (hard cutoff, no drain), and participants idle past
// inactivity are removed, deleting the session if that empties it.
func (r *Registry) Sweep(now time.Time, maxAge, inactivity time.Duration) SweepReport {
	report := SweepReport{
		RemovedParticipants: make(map[string][]uuid.UUID),
		ExpiredUsers:        make(map[string][]uuid.UUID),
	}

	for _, s := range r.List() {
		if s.Age(now) > maxAge {
			r.Remove(s.ID)
			report.ExpiredSessions = append(report.ExpiredSessions, s.ID)
			s.mu.RLock()
			for userID := range s.participants {
				report.ExpiredUsers[s.ID] = append(report.ExpiredUsers[s.ID], userID)
			}
			s.mu.RUnlock()
			continue
		}

		s.mu.Lock()
		for userID, p := range s.participants {
			if now.Sub(p.LastActiveAt) > inactivity {
				delete(s.participants, userID)
				report.RemovedParticipants[s.ID] = append(report.RemovedParticipants[s.ID], userID)
			}
		}
		empty := len(s.participants) == 0
		s.mu.Unlock()

		if empty && len(report.RemovedParticipants[s.ID]) > 0 {
			r.Remove(s.ID)
			report.EmptiedSessions = append(report.EmptiedSessions, s.ID)
		}
	}
	return report
}

// RemoveParticipantAfterGrace is called from the grace timer scheduled
// at disconnect. It removes the participant only if they are still
// disconnected since the recorded time, and deletes the session when it
// ends up empty. Reports (removed, sessionDeleted).
func (r *Registry) RemoveParticipantAfterGrace(sessionID string, userID uuid.UUID, disconnectedBefore time.Time) (bool, bool) {
	s, ok := r.Get(sessionID)
	if !ok {
		return false, false
	}
	removed, empty := s.RemoveIfDisconnected(userID, disconnectedBefore)
	if removed && empty {
		r.Remove(sessionID)
		return true, true
	}
	return removed, false
}
