package live

import (
	"log"
	"time"

	"lessonsync-backend/internal/session"
)

// Sweeper runs the two liveness tasks on independent timers: the
// heartbeat that detects half-open connections, and the expiry pass
// that drops over-age sessions and idle participants.
type Sweeper struct {
	hub      *Hub
	registry *session.Registry

	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	maxSessionAge     time.Duration
	inactivityTimeout time.Duration

	stopChan chan struct{}
}

func NewSweeper(hub *Hub, registry *session.Registry, heartbeatInterval, sweepInterval, maxSessionAge, inactivityTimeout time.Duration) *Sweeper {
	return &Sweeper{
		hub:               hub,
		registry:          registry,
		heartbeatInterval: heartbeatInterval,
		sweepInterval:     sweepInterval,
		maxSessionAge:     maxSessionAge,
		inactivityTimeout: inactivityTimeout,
		stopChan:          make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.heartbeatLoop()
	go s.expiryLoop()
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.hub.PingConnections()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Sweeper) expiryLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runExpiry(time.Now())
		case <-s.stopChan:
			return
		}
	}
}

func (s *Sweeper) runExpiry(now time.Time) {
	report := s.registry.Sweep(now, s.maxSessionAge, s.inactivityTimeout)

	for _, id := range report.ExpiredSessions {
		// Hard cutoff, no drain. Remaining connections are closed so no
		// socket keeps feeding events into the deleted session.
		log.Printf("session expired (max duration): session=%s", id)
		for _, userID := range report.ExpiredUsers[id] {
			s.hub.DisconnectUser(userID)
		}
		if s.hub.notifier != nil {
			s.hub.notifier.SessionClosed(id, "expired")
		}
	}
	for sessionID, users := range report.RemovedParticipants {
		for _, userID := range users {
			log.Printf("participant removed (inactive): session=%s user=%s", sessionID, userID)
		}
	}
	for _, id := range report.EmptiedSessions {
		log.Printf("session closed (empty after sweep): session=%s", id)
		if s.hub.notifier != nil {
			s.hub.notifier.SessionClosed(id, "empty")
		}
	}

	s.hub.metrics.SessionsGauge.Set(float64(s.registry.Count()))
}
