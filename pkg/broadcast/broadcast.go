package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/metrics"
	"github.com/ctavolazzi/mission-control/pkg/types"
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// Hub fans frames out to connected websocket clients. Each session gets a
// buffered send queue drained by its own writer goroutine; a client that
// lets its queue fill up is disconnected instead of blocking the rest.
type Hub struct {
	snapshot  func() map[string]*types.RepoState
	onRefresh func(repo string)
	upgrader  websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub. snapshot supplies the full repo state for init
// frames; onRefresh receives client-requested re-parses and may be nil.
func NewHub(snapshot func() map[string]*types.RepoState, onRefresh func(repo string)) *Hub {
	return &Hub{
		snapshot:  snapshot,
		onRefresh: onRefresh,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The control plane and the browser UI share an origin; the
			// dashboard is also opened from file:// during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// Handler upgrades the request and runs the session until the peer goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := log.WithComponent("broadcast")
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		h.serve(conn)
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	s := &session{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	logger := log.WithClientID(s.id)

	init, err := json.Marshal(InitFrame(h.snapshot()))
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal init frame")
		conn.Close()
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	// Enqueue init before registering so it precedes any broadcast frame
	// for this session.
	s.send <- init
	h.sessions[s.id] = s
	h.mu.Unlock()

	metrics.ClientsConnected.Inc()
	metrics.BroadcastFramesTotal.WithLabelValues(FrameInit).Inc()
	logger.Info().Msg("client connected")

	h.wg.Add(1)
	go h.writer(s, logger)
	h.reader(s, logger)
}

// writer drains the session's queue into the socket.
func (h *Hub) writer(s *session, logger zerolog.Logger) {
	defer h.wg.Done()
	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn().Err(err).Msg("failed to send frame")
				h.drop(s)
				return
			}
		case <-s.done:
			return
		}
	}
}

// reader consumes client frames until the connection drops.
func (h *Hub) reader(s *session, logger zerolog.Logger) {
	defer h.drop(s)
	for {
		var req struct {
			Type string `json:"type"`
			Repo string `json:"repo"`
		}
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("client read error")
			} else {
				logger.Info().Msg("client disconnected")
			}
			return
		}
		if req.Type == "refresh" && req.Repo != "" && h.onRefresh != nil {
			logger.Debug().Str("repo", req.Repo).Msg("client requested refresh")
			h.onRefresh(req.Repo)
		}
	}
}

// drop unregisters and closes a session exactly once.
func (h *Hub) drop(s *session) {
	s.once.Do(func() {
		h.mu.Lock()
		_, tracked := h.sessions[s.id]
		delete(h.sessions, s.id)
		h.mu.Unlock()

		close(s.done)
		s.conn.Close()
		if tracked {
			metrics.ClientsConnected.Dec()
		}
	})
}

// Broadcast sends one frame to every connected session. A session whose
// queue is full cannot keep up and is closed; the loop never blocks on one
// client, and the remaining sessions are unaffected.
func (h *Hub) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger := log.WithComponent("broadcast")
		logger.Error().Err(err).Str("type", frame.Type()).Msg("failed to marshal frame")
		return
	}
	metrics.BroadcastFramesTotal.WithLabelValues(frame.Type()).Inc()

	var slow []*session
	h.mu.RLock()
	for _, s := range h.sessions {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		metrics.BroadcastErrorsTotal.Inc()
		logger := log.WithClientID(s.id)
		logger.Warn().Str("type", frame.Type()).Msg("send queue full, closing slow client")
		h.drop(s)
	}
}

// ClientCount reports the number of live sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close sends a normal-closure to every client and waits for the writers to
// finish. The hub refuses new sessions afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	for _, s := range sessions {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		h.drop(s)
	}
	h.wg.Wait()
}
