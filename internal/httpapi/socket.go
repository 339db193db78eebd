package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/obay/internal/query"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// Socket frame events.
const (
	EventRecord = "record"
	EventState  = "state"
	EventError  = "error"
)

// Frame is one websocket message: an event name and its payload.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// watch upgrades the request and streams the kind's change feed. Handshake
// query parameters select the records followed. The subscription is closed
// as soon as the client goes away.
func (h *kindHandler) watch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	defer conn.Close()

	s := h.server
	logger := s.logger.With("kind", h.g.Kind().Name, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cur, err := h.g.Watch(ctx, query.FromValues(r.URL.Query()))
	if err != nil {
		logger.Error("route error", "path", r.URL.Path, "error", err)
		s.writeFrame(conn, Frame{Event: EventError, Data: errorBody{Err: err.Error()}})
		s.closeSocket(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer cur.Close()
	logger.Debug("socket connected")

	go s.readPump(conn, cancel)

	events := make(chan types.ChangeEvent)
	errc := make(chan error, 1)
	go func() {
		for {
			ev, err := cur.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if err := s.writeFrame(conn, Frame{Event: ev.Name(), Data: ev}); err != nil {
				logger.Debug("socket write failed", "error", err)
				return
			}
		case err := <-errc:
			if ctx.Err() != nil {
				logger.Debug("socket disconnected")
				return
			}
			logger.Warn("subscription ended", "error", err)
			s.writeFrame(conn, Frame{Event: EventError, Data: errorBody{Err: err.Error()}})
			code := websocket.CloseInternalServerErr
			if errors.Is(err, types.ErrStoreDetached) {
				code = websocket.CloseGoingAway
			}
			s.closeSocket(conn, code, "subscription ended")
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("socket ping failed", "error", err)
				return
			}
		case <-ctx.Done():
			logger.Debug("socket disconnected")
			return
		}
	}
}

// readPump discards client messages and cancels the subscription when the
// connection closes or stops answering pings.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return conn.WriteJSON(f)
}

func (s *Server) closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
}
