// Package ws streams session events to websocket watchers.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/hub"
	"github.com/xiaot623/dealroom/internal/registry"
)

// Options holds the websocket timing settings.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// SessionReader looks up sessions for the initial snapshot.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.NegotiationSession, error)
}

// Server handles WebSocket connections.
type Server struct {
	opts     Options
	hub      *hub.Hub
	sessions SessionReader
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(opts Options, h *hub.Hub, sessions SessionReader, logger *zap.Logger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:     opts,
		hub:      h,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With(zap.String("component", "ws")),
	}
}

// HandleWebSocket streams the events of one session. The first frame is a
// snapshot of the session; live events follow.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("session_id")
	ctx := c.Request().Context()

	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, domain.Envelope{Error: "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, domain.Envelope{Error: err.Error()})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws, sessionID)
	if !s.hub.Register(conn) {
		ws.Close()
		return nil
	}

	// Snapshot after registering so no event falls between the two. It is
	// written before the pump starts, so events already queued on Send follow
	// it; watchers dedupe messages by hash.
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err == nil {
		err = conn.WriteJSON(domain.SessionEvent{
			Type:      domain.SessionEventSnapshot,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
			Status:    session.Status,
			Session:   &session,
		}, s.opts.WriteTimeout)
	}
	if err != nil {
		s.logger.Warn("failed to send snapshot", zap.String("session_id", sessionID), zap.Error(err))
		s.hub.Unregister(conn)
		conn.Close()
		return nil
	}

	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump drains the connection so pongs and close frames are processed.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
