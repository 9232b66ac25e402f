package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingPeriod   = streamPongWait * 9 / 10

	MessageSnapshot   = "snapshot"
	MessageTransition = "transition"
	MessageNavigation = "navigation"
)

// EventsHandler streams session transitions and back-stack changes over a websocket.
type EventsHandler struct {
	controller  *usecase.SessionController
	coordinator *usecase.RouteCoordinator
	upgrader    websocket.Upgrader
	logger      *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewEventsHandler constructs an events handler. checkOrigin may be nil to allow any origin.
func NewEventsHandler(controller *usecase.SessionController, coordinator *usecase.RouteCoordinator, checkOrigin func(origin string) bool, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		controller:  controller,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin == nil || checkOrigin(r.Header.Get("Origin"))
			},
		},
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Close disconnects every open stream. Hijacked connections are not covered
// by http.Server.Shutdown.
func (h *EventsHandler) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Stream upgrades the request and pushes a snapshot followed by every change.
func (h *EventsHandler) Stream(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newStreamConn(ws, h.logger)
	defer conn.Close()

	// Subscribe before the snapshot: anything queued earlier is older than it.
	unsubscribeSession := h.controller.Subscribe(func(tr domain.Transition) {
		resp := newTransitionResponse(tr)
		conn.Send(StreamMessage{Type: MessageTransition, Transition: &resp})
	})
	defer unsubscribeSession()

	unsubscribeStack := h.coordinator.Subscribe(func(stack []domain.Route) {
		resp := NewNavigationResponse(stack)
		conn.Send(StreamMessage{Type: MessageNavigation, Navigation: &resp})
	})
	defer unsubscribeStack()

	session := NewSessionStateResponse(h.controller.State())
	navigation := NewNavigationResponse(h.coordinator.BackStack())
	conn.Send(StreamMessage{Type: MessageSnapshot, Session: &session, Navigation: &navigation})

	conn.Run(c.Request.Context(), h.stop)
}

// streamConn owns a websocket. Only the write loop writes to it.
type streamConn struct {
	ws        *websocket.Conn
	writeCh   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newStreamConn(ws *websocket.Conn, logger *zap.Logger) *streamConn {
	return &streamConn{
		ws:      ws,
		writeCh: make(chan []byte, streamBuffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Send queues msg without blocking. A client that cannot keep up is disconnected.
func (s *streamConn) Send(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode stream message", zap.Error(err))
		return
	}
	select {
	case <-s.done:
	case s.writeCh <- data:
	default:
		s.logger.Warn("stream client too slow, disconnecting")
		s.Close()
	}
}

// Run serves the connection until the client leaves, ctx ends or stop closes.
func (s *streamConn) Run(ctx context.Context, stop <-chan struct{}) {
	go s.readLoop()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-stop:
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-s.done:
			return
		case data := <-s.writeCh:
			if err := s.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *streamConn) write(messageType int, data []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return s.ws.WriteMessage(messageType, data)
}

// readLoop discards client frames and notices disconnects.
func (s *streamConn) readLoop() {
	defer s.Close()

	s.ws.SetReadLimit(512)
	_ = s.ws.SetReadDeadline(time.Now().Add(streamPongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *streamConn) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}
