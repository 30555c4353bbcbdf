package live

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lessonsync-backend/internal/metrics"
	"lessonsync-backend/internal/session"
	"lessonsync-backend/pkg/livewire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CredentialVerifier resolves a bearer token to a user id, rejecting
// expired or malformed tokens. Implemented by middleware.JWTAuth.
type CredentialVerifier interface {
	VerifyToken(tokenStr string) (uuid.UUID, error)
}

// ProfileSource resolves a user id to a display profile at join time.
// Implemented by repository.UserRepo.
type ProfileSource interface {
	ProfileByID(ctx context.Context, userID uuid.UUID) (session.Profile, error)
}

// BanChecker consults the moderation denylist before admission.
// Implemented by repository.BanRepo; may be nil.
type BanChecker interface {
	IsBanned(ctx context.Context, userID uuid.UUID) (bool, error)
}

// LifecycleNotifier tells the rest of the platform about session
// lifecycle transitions. Fire-and-forget; may be nil.
type LifecycleNotifier interface {
	SessionCreated(sessionID string, createdBy uuid.UUID)
	SessionClosed(sessionID string, reason string)
}

// Hub is the process-wide coordination point: it gates inbound
// connections, owns the connection-by-user index, routes decoded events
// into sessions, and fans results out. Constructed once in main.
type Hub struct {
	registry *session.Registry
	verifier CredentialVerifier
	profiles ProfileSource
	bans     BanChecker
	notifier LifecycleNotifier
	metrics  *metrics.Metrics

	grace             time.Duration
	heartbeatInterval time.Duration

	connsMu sync.RWMutex
	conns   map[uuid.UUID]*Conn
}

func NewHub(
	registry *session.Registry,
	verifier CredentialVerifier,
	profiles ProfileSource,
	bans BanChecker,
	notifier LifecycleNotifier,
	m *metrics.Metrics,
	grace time.Duration,
	heartbeatInterval time.Duration,
) *Hub {
	return &Hub{
		registry:          registry,
		verifier:          verifier,
		profiles:          profiles,
		bans:              bans,
		notifier:          notifier,
		metrics:           m,
		grace:             grace,
		heartbeatInterval: heartbeatInterval,
		conns:             make(map[uuid.UUID]*Conn),
	}
}

// HandleWebSocket is the connection gate. Authentication failures are
// rejected before the upgrade; a full session is refused after upgrade
// with an explicit close code so the client can tell it apart from a
// network failure.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	sessionID := r.URL.Query().Get("session_id")
	if tokenStr == "" || sessionID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.VerifyToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.bans != nil {
		banned, err := h.bans.IsBanned(r.Context(), userID)
		if err != nil {
			log.Printf("ban check failed for user %s: %v", userID, err)
		} else if banned {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	profile, err := h.profiles.ProfileByID(r.Context(), userID)
	if err != nil {
		log.Printf("profile lookup failed for user %s: %v", userID, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	now := time.Now()
	sess, info, err := h.registry.Join(sessionID, userID, profile, now)
	if errors.Is(err, session.ErrSessionFull) {
		conn := newConn(ws, userID, sessionID, profile)
		conn.CloseWithReason(livewire.CloseSessionFull, "session full")
		return
	}
	if err != nil {
		ws.Close()
		return
	}

	conn := newConn(ws, userID, sessionID, profile)
	h.register(conn)

	if info.Created && h.notifier != nil {
		h.notifier.SessionCreated(sessionID, userID)
	}
	h.metrics.SessionsGauge.Set(float64(h.registry.Count()))

	// Synchronization point: the joiner gets the whole document, then
	// everyone else learns about the joiner. A grace-window rejoin is
	// not announced; nobody ever saw the participant leave.
	if err := conn.WriteJSON(livewire.NewSessionJoined(sess.Snapshot())); err != nil {
		log.Printf("failed to send join snapshot to %s: %v", userID, err)
	}
	if !info.Rejoined {
		h.Broadcast(sess, livewire.NewParticipantJoined(info.Participant), userID)
	}

	log.Printf("participant joined: session=%s user=%s created=%t rejoined=%t",
		sessionID, userID, info.Created, info.Rejoined)

	h.readLoop(conn, sess)
}

func (h *Hub) register(conn *Conn) {
	h.connsMu.Lock()
	old, exists := h.conns[conn.userID]
	h.conns[conn.userID] = conn
	h.connsMu.Unlock()

	if exists {
		// Replaced by a newer connection for the same user (e.g. a
		// reconnect racing the old socket's teardown).
		old.Close()
	}
	h.metrics.ConnectionsGauge.Set(float64(h.connectionCount()))
}

// unregister removes the connection only if it is still the one
// indexed, so a stale teardown cannot evict a fresh reconnect. Reports
// whether the connection was still current.
func (h *Hub) unregister(conn *Conn) bool {
	h.connsMu.Lock()
	current, ok := h.conns[conn.userID]
	wasCurrent := ok && current == conn
	if wasCurrent {
		delete(h.conns, conn.userID)
	}
	h.connsMu.Unlock()
	h.metrics.ConnectionsGauge.Set(float64(h.connectionCount()))
	return wasCurrent
}

func (h *Hub) connectionCount() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}

func (h *Hub) readLoop(conn *Conn, sess *session.Session) {
	defer h.handleDisconnect(conn, sess)

	conn.ws.SetReadDeadline(time.Now().Add(2 * h.heartbeatInterval))
	conn.ws.SetPongHandler(func(string) error {
		conn.alive.Store(true)
		conn.ws.SetReadDeadline(time.Now().Add(2 * h.heartbeatInterval))
		return nil
	})

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("read error: session=%s user=%s: %v", conn.sessionID, conn.userID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := livewire.DecodeClientEvent(data)
		if err != nil {
			// Malformed or unknown events are non-fatal.
			log.Printf("dropping event: session=%s user=%s: %v", conn.sessionID, conn.userID, err)
			continue
		}
		h.dispatch(conn, sess, ev)
	}
}

// dispatch applies one decoded event to the session and computes the
// outbound broadcast. The switch is exhaustive over ClientEvent.
func (h *Hub) dispatch(conn *Conn, sess *session.Session, ev livewire.ClientEvent) {
	userID := conn.userID
	now := time.Now()

	switch ev := ev.(type) {
	case livewire.CursorMove:
		cursor, err := sess.SetCursor(userID, ev.X, ev.Y, now)
		if err != nil {
			// Disabled cursor sharing drops the event without error.
			return
		}
		h.countEvent(livewire.EventCursorMove)
		h.Broadcast(sess, livewire.NewCursorUpdated(userID, cursor), userID)

	case livewire.StepProgress:
		snap, err := sess.ApplyStepProgress(userID, ev.StepNumber, ev.Completed, now)
		if err != nil {
			return
		}
		h.countEvent(livewire.EventStepProgress)
		// Sender included: the broadcast doubles as the UI confirmation.
		h.Broadcast(sess, livewire.NewProgressUpdated(userID, snap), uuid.Nil)

	case livewire.AddNote:
		note, err := sess.AddNote(userID, ev.Content, ev.Position, now)
		if err != nil {
			return
		}
		h.countEvent(livewire.EventAddNote)
		h.Broadcast(sess, livewire.NewNoteAdded(note), uuid.Nil)

	case livewire.WhiteboardDraw:
		stroke, err := sess.AddStroke(userID, ev.Kind, ev.Payload, now)
		if err != nil {
			return
		}
		h.countEvent(livewire.EventWhiteboardDraw)
		// Sender already rendered its own stroke optimistically.
		h.Broadcast(sess, livewire.NewWhiteboardUpdated(stroke), userID)

	case livewire.VoiceState:
		if err := sess.SetVoiceState(userID, ev.Muted, ev.Talking, now); err != nil {
			return
		}
		h.countEvent(livewire.EventVoiceState)
		h.Broadcast(sess, livewire.NewVoiceStateChanged(userID, ev.Muted, ev.Talking), userID)

	case livewire.LessonContext:
		// Non-creator attempts are dropped silently.
		if err := sess.SetLessonContext(userID, ev.LessonID, ev.LessonTitle, now); err != nil {
			return
		}
		h.countEvent(livewire.EventLessonContext)
		h.Broadcast(sess, livewire.NewLessonContextUpdated(userID, ev.LessonID, ev.LessonTitle), uuid.Nil)

	case livewire.TypingIndicator:
		if err := sess.Touch(userID, now); err != nil {
			return
		}
		h.countEvent(livewire.EventTypingIndicator)
		h.Broadcast(sess, livewire.NewTypingIndicator(userID, ev.IsTyping, ev.Location, now), userID)
	}
}

func (h *Hub) handleDisconnect(conn *Conn, sess *session.Session) {
	wasCurrent := h.unregister(conn)
	conn.Close()

	// A teardown racing a fresh reconnect must not mark the newly
	// connected participant as gone.
	if !wasCurrent {
		return
	}

	now := time.Now()
	if !sess.MarkDisconnected(conn.userID, now) {
		return
	}
	h.Broadcast(sess, livewire.NewParticipantDisconnected(conn.userID), conn.userID)
	log.Printf("participant disconnected: session=%s user=%s grace=%s", sess.ID, conn.userID, h.grace)

	// The record survives the grace window so a quick reconnect reuses
	// it; only after that does it count as a real leave.
	userID := conn.userID
	sessionID := sess.ID
	time.AfterFunc(h.grace, func() {
		removed, deleted := h.registry.RemoveParticipantAfterGrace(sessionID, userID, now)
		if removed {
			log.Printf("participant removed after grace: session=%s user=%s", sessionID, userID)
		}
		if deleted {
			log.Printf("session closed (empty): session=%s", sessionID)
			if h.notifier != nil {
				h.notifier.SessionClosed(sessionID, "empty")
			}
		}
		h.metrics.SessionsGauge.Set(float64(h.registry.Count()))
	})
}

// Broadcast delivers msg to every active participant of sess except
// exclude (uuid.Nil excludes nobody). The session object, not a
// registry lookup, is the source of truth: an event originating in a
// removed session can only reach that orphaned session's own members,
// never a successor session created under the same id. Best-effort:
// each failure is counted and logged, and never interrupts the
// remaining deliveries.
func (h *Hub) Broadcast(sess *session.Session, msg any, exclude uuid.UUID) {
	for _, p := range sess.ActiveParticipants() {
		if p.UserID == exclude {
			continue
		}
		if err := h.SendToUser(p.UserID, msg); err != nil && !errors.Is(err, ErrNoConnection) {
			h.metrics.DeliveryFailures.Inc()
			log.Printf("delivery failed: session=%s user=%s: %v", sess.ID, p.UserID, err)
		}
	}
}

// DisconnectUser force-closes the user's current connection, if any.
// The read loop unwinds and runs the normal disconnect path.
func (h *Hub) DisconnectUser(userID uuid.UUID) {
	h.connsMu.RLock()
	conn, ok := h.conns[userID]
	h.connsMu.RUnlock()
	if ok {
		conn.Close()
	}
}

// SendToUser delivers msg over the user's current connection, if any.
func (h *Hub) SendToUser(userID uuid.UUID, msg any) error {
	h.connsMu.RLock()
	conn, ok := h.conns[userID]
	h.connsMu.RUnlock()
	if !ok {
		return ErrNoConnection
	}

	h.metrics.DeliveryAttempts.Inc()
	return conn.WriteJSON(msg)
}

// PingConnections runs one heartbeat round: connections that never
// answered the previous probe are force-terminated; the rest are marked
// unanswered and probed again. Called by the sweeper.
func (h *Hub) PingConnections() {
	h.connsMu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.connsMu.RUnlock()

	for _, c := range conns {
		if !c.alive.Load() {
			log.Printf("terminating unresponsive connection: session=%s user=%s", c.sessionID, c.userID)
			c.Close() // read loop unwinds and runs the disconnect path
			continue
		}
		c.alive.Store(false)
		if err := c.Ping(); err != nil {
			c.Close()
		}
	}
}

func (h *Hub) countEvent(eventType string) {
	h.metrics.EventsHandled.WithLabelValues(eventType).Inc()
}

// Registry exposes the session registry for read-only HTTP surfaces.
func (h *Hub) Registry() *session.Registry {
	return h.registry
}
