// Package liveclient maintains a logical attachment to one live lesson
// session across physical connection churn: it dials the session
// endpoint, tracks the authoritative state the server pushes, and
// reconnects with exponential backoff after unexpected closes.
package liveclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lessonsync-backend/pkg/livewire"
)

var (
	// ErrSessionFull means the server refused the join with its
	// "session full" close code; retrying will not help.
	ErrSessionFull = errors.New("session is full")

	// ErrRetriesExhausted means the reconnect budget ran out.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	ErrNotConnected = errors.New("client is not connected")
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 10
)

type Config struct {
	ServerURL string // http(s) base URL of the backend
	Token     string
	SessionID string

	// Optional lesson context, re-sent on every successful (re)connect.
	// The server only accepts it from the session creator, so setting
	// it on other clients is harmless.
	LessonID    string
	LessonTitle string

	BaseDelay   time.Duration // doubled per failed attempt
	MaxDelay    time.Duration // backoff cap
	MaxAttempts int           // consecutive failures before giving up

	// OnMessage, when set, observes every decoded server message after
	// the client has folded it into its local view.
	OnMessage func(livewire.ServerMessage)
}

type Client struct {
	cfg Config

	mu           sync.RWMutex
	conn         *websocket.Conn
	connected    bool
	lastErr      error
	state        livewire.StateSnapshot
	participants []livewire.Participant
	settings     livewire.Settings

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Client{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start runs the connection manager until Close is called, the context
// is cancelled, a terminal refusal arrives, or retries run out.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	attempts := 0

	for {
		wasConnected, terminal, err := c.connectAndRead(ctx)
		if terminal {
			c.setErr(err)
			return
		}

		// Only consecutive failures accumulate; any successful connect
		// resets the budget.
		if wasConnected {
			attempts = 0
		}
		attempts++
		if attempts > c.cfg.MaxAttempts {
			c.setErr(ErrRetriesExhausted)
			return
		}

		select {
		case <-time.After(backoffDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, attempts)):
		case <-c.done:
			return
		case <-ctx.Done():
			c.setErr(ctx.Err())
			return
		}
	}
}

// connectAndRead performs one connection lifetime. It reports whether
// a connection was established at all, and whether the outcome is
// terminal (deliberate close, session full, context cancelled) or
// worth a reconnect attempt.
func (c *Client) connectAndRead(ctx context.Context) (bool, bool, error) {
	wsURL, err := c.dialURL()
	if err != nil {
		return false, true, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, true, ctx.Err()
		}
		return false, false, fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Idempotent: the server just re-applies the creator's context.
	if c.cfg.LessonID != "" || c.cfg.LessonTitle != "" {
		c.Send(livewire.LessonContext{LessonID: c.cfg.LessonID, LessonTitle: c.cfg.LessonTitle})
	}

	terminal, readErr := c.readUntilClosed(conn)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	select {
	case <-c.done:
		return true, true, nil
	case <-ctx.Done():
		return true, true, ctx.Err()
	default:
	}
	return true, terminal, readErr
}

func (c *Client) readUntilClosed(conn *websocket.Conn) (bool, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return true, nil
			case websocket.IsCloseError(err, livewire.CloseSessionFull):
				return true, ErrSessionFull
			default:
				return false, err
			}
		}

		msg, err := livewire.DecodeServerMessage(data)
		if err != nil {
			// Unknown message types are skipped, not fatal; an older
			// client keeps working against a newer server.
			continue
		}
		c.apply(msg)
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

// apply folds one server message into the local view. The switch is
// exhaustive over livewire.ServerMessage.
func (c *Client) apply(msg livewire.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case livewire.SessionJoined:
		// Authoritative snapshot replaces everything local.
		c.state = m.State
		c.participants = m.Participants
		c.settings = m.Settings

	case livewire.ParticipantJoined:
		replaced := false
		for i := range c.participants {
			if c.participants[i].UserID == m.Participant.UserID {
				c.participants[i] = m.Participant
				replaced = true
				break
			}
		}
		if !replaced {
			c.participants = append(c.participants, m.Participant)
		}

	case livewire.ParticipantDisconnected:
		for i := range c.participants {
			if c.participants[i].UserID == m.UserID {
				c.participants[i].IsActive = false
				break
			}
		}

	case livewire.CursorUpdated:
		for i := range c.participants {
			if c.participants[i].UserID == m.UserID {
				cursor := m.Cursor
				c.participants[i].Cursor = &cursor
				break
			}
		}

	case livewire.ProgressUpdated:
		c.state.CurrentStep = m.CurrentStep
		c.state.CompletedSteps = m.CompletedSteps

	case livewire.NoteAdded:
		c.state.Notes = append(c.state.Notes, m.Note)

	case livewire.WhiteboardUpdated:
		c.state.Strokes = append(c.state.Strokes, m.Stroke)

	case livewire.VoiceStateChanged:
		for i := range c.participants {
			if c.participants[i].UserID == m.UserID {
				c.participants[i].Voice = &livewire.VoiceState{Muted: m.Muted, Talking: m.Talking}
				break
			}
		}

	case livewire.LessonContextUpdated:
		c.state.LessonID = m.LessonID
		c.state.LessonTitle = m.LessonTitle

	case livewire.TypingIndicatorRelay:
		// Ephemeral; surfaced only through OnMessage.
	}
}

// Send forwards one typed event to the server.
func (c *Client) Send(ev livewire.ClientEvent) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := livewire.EncodeClientEvent(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Convenience forwarders for the application layer.

func (c *Client) SendCursor(x, y float64) error {
	return c.Send(livewire.CursorMove{X: x, Y: y})
}

func (c *Client) SendStepProgress(stepNumber int, completed bool) error {
	return c.Send(livewire.StepProgress{StepNumber: stepNumber, Completed: completed})
}

func (c *Client) SendNote(content string, x, y float64) error {
	return c.Send(livewire.AddNote{Content: content, Position: livewire.Position{X: x, Y: y}})
}

func (c *Client) SendDraw(kind string, payload []byte) error {
	return c.Send(livewire.WhiteboardDraw{Kind: kind, Payload: payload})
}

func (c *Client) SendVoiceState(muted, talking bool) error {
	return c.Send(livewire.VoiceState{Muted: muted, Talking: talking})
}

func (c *Client) SendTyping(isTyping bool, location string) error {
	return c.Send(livewire.TypingIndicator{IsTyping: isTyping, Location: location})
}

func (c *Client) SendLessonContext(lessonID, lessonTitle string) error {
	return c.Send(livewire.LessonContext{LessonID: lessonID, LessonTitle: lessonTitle})
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// State returns the latest shared-state snapshot.
func (c *Client) State() livewire.StateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Participants returns the latest known participant list.
func (c *Client) Participants() []livewire.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]livewire.Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

func (c *Client) Settings() livewire.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Err reports why the manager stopped, if it has.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Close detaches deliberately: a normal-closure frame is sent so the
// manager (and the server) treat this as intentional, not a failure.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnected"),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			conn.Close()
		}
	})
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil && c.lastErr == nil {
		c.lastErr = err
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/v1/ws"
	query := u.Query()
	query.Set("token", c.cfg.Token)
	query.Set("session_id", c.cfg.SessionID)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// backoffDelay doubles the base per attempt, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
