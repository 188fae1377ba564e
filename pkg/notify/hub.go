package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/types"
)

// Event types
const (
	EventDeploymentStatus = "deployment.status"
	EventRegistered       = "registered"
)

var (
	// ErrSessionFull is returned by Send when the session buffer is full
	ErrSessionFull = errors.New("session send buffer full")

	// ErrSessionClosed is returned by Send after the session has closed
	ErrSessionClosed = errors.New("session closed")
)

// Message is pushed to a user's session
type Message struct {
	Event      string            `json:"event"`
	Timestamp  time.Time         `json:"timestamp"`
	Deployment *types.Deployment `json:"deployment,omitempty"`
}

// Session is a live connection to one user. Send must not block.
type Session interface {
	ID() string
	Send(msg Message) error
}

// Hub maps user identifiers to their current session. The most recent
// registration for a user wins.
type Hub struct {
	sessions map[string]Session
	mu       sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]Session)}
}

// Register makes s the current session of userID
func (h *Hub) Register(userID string, s Session) {
	h.mu.Lock()
	h.sessions[userID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	metrics.SessionsActive.Set(float64(count))
}

// Unregister removes s if it is still the current session of userID.
// A newer session registered for the same user is left in place.
func (h *Hub) Unregister(userID string, s Session) bool {
	h.mu.Lock()
	current, ok := h.sessions[userID]
	removed := ok && current.ID() == s.ID()
	if removed {
		delete(h.sessions, userID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	metrics.SessionsActive.Set(float64(count))
	return removed
}

// Lookup returns the current session of userID
func (h *Hub) Lookup(userID string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[userID]
	return s, ok
}

// Notify pushes the deployment's current state to userID. Delivery is
// best effort: without a session, or with a full buffer, the message is
// dropped.
func (h *Hub) Notify(userID string, d *types.Deployment) {
	s, ok := h.Lookup(userID)
	if !ok {
		metrics.NotificationsTotal.WithLabelValues("no_session").Inc()
		log.Logger.Debug().Str("user_id", userID).Msg("No session for user, notification dropped")
		return
	}

	msg := Message{Event: EventDeploymentStatus, Timestamp: time.Now(), Deployment: d.Clone()}
	if err := s.Send(msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		log.Logger.Debug().Err(err).Str("user_id", userID).Msg("Notification dropped")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
}

// SessionCount returns the number of registered users
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
