package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lessonsync-backend/internal/session"
)

// LiveSessionHandler exposes a read-only view of the in-memory session
// registry, used by the lesson UI as a join preview and by operators.
type LiveSessionHandler struct {
	registry *session.Registry
}

func NewLiveSessionHandler(registry *session.Registry) *LiveSessionHandler {
	return &LiveSessionHandler{registry: registry}
}

type liveSessionView struct {
	SessionID        string           `json:"session_id"`
	CreatedBy        uuid.UUID        `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	ParticipantCount int              `json:"participant_count"`
	ActiveCount      int              `json:"active_count"`
	Settings         session.Settings `json:"settings"`
}

func viewOf(s *session.Session) liveSessionView {
	return liveSessionView{
		SessionID:        s.ID,
		CreatedBy:        s.CreatedBy,
		CreatedAt:        s.CreatedAt,
		ParticipantCount: s.ParticipantCount(),
		ActiveCount:      len(s.ActiveParticipants()),
		Settings:         s.Settings(),
	}
}

func (h *LiveSessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()

	views := make([]liveSessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, viewOf(s))
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (h *LiveSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	s, ok := h.registry.Get(sessionID)
	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "No live session with that id")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(s))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
