package live

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lessonsync-backend/internal/session"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 64
)

// Conn wraps one live websocket with a single writer goroutine, so
// concurrent broadcasts never interleave frames. It carries the
// identity resolved by the connection gate.
type Conn struct {
	ws        *websocket.Conn
	userID    uuid.UUID
	sessionID string
	profile   session.Profile

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// alive is cleared before each heartbeat probe and set again by the
	// pong handler; a connection that stays cleared is half-open.
	alive atomic.Bool
}

func newConn(ws *websocket.Conn, userID uuid.UUID, sessionID string, profile session.Profile) *Conn {
	c := &Conn{
		ws:        ws,
		userID:    userID,
		sessionID: sessionID,
		profile:   profile,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
	c.alive.Store(true)
	go c.writeLoop()
	return c
}

func (c *Conn) UserID() uuid.UUID { return c.userID }
func (c *Conn) SessionID() string { return c.sessionID }

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// WriteJSON queues a message for the writer goroutine. Non-blocking: a
// full queue drops the frame and reports it, so one slow recipient
// cannot stall a broadcast.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// Ping sends a liveness probe as a control frame, bypassing the queue.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// CloseWithReason sends a close frame with an application close code
// before tearing the connection down.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.Close()
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
