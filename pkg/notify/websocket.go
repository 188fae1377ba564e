package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	registerWait   = 10 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 16

	// EventRegister is the event of the client's announcement
	EventRegister = "register"
)

// RegisterMessage is the announcement a client sends right after connecting
type RegisterMessage struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsSession struct {
	id     string
	conn   *websocket.Conn
	send   chan Message
	done   chan struct{}
	closed sync.Once
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string {
	return s.id
}

func (s *wsSession) Send(msg Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionFull
	}
}

func (s *wsSession) close() {
	s.closed.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop discards client frames and returns when the connection drops
func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWS upgrades the request, waits for the client's register
// announcement and binds the connection to that user until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("notify")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(registerWait))
	var reg RegisterMessage
	if err := conn.ReadJSON(&reg); err != nil || reg.Event != EventRegister || reg.UserID == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected register announcement"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		logger.Debug().Err(err).Msg("WebSocket closed before registering")
		return
	}

	s := newWSSession(conn)
	h.Register(reg.UserID, s)
	logger.Info().Str("user_id", reg.UserID).Str("session_id", s.id).Msg("Session registered")

	_ = s.Send(Message{Event: EventRegistered, Timestamp: time.Now()})
	go s.writeLoop()

	s.readLoop()

	h.Unregister(reg.UserID, s)
	s.close()
	logger.Info().Str("user_id", reg.UserID).Str("session_id", s.id).Msg("Session closed")
}
