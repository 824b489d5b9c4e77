package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/town"
)

const (
	joinTimeout  = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 1 << 20
)

// serveWS upgrades the connection and expects a join frame before anything else.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	t, p, err := s.join(r.Context(), conn)
	if err != nil {
		s.reject(conn, err)
		return
	}
	logger := s.logger.With(zap.String("town", t.ID()), zap.String("player", p.ID))
	logger.Debug("websocket session started", zap.String("remote", r.RemoteAddr))

	go s.writePump(conn, p, logger)
	s.readPump(conn, t, p, logger)
}

var errNotJoin = errors.New("first frame must be join")

func (s *Server) join(ctx context.Context, conn *websocket.Conn) (*town.Town, *session.Player, error) {
	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, err
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	var req protocol.JoinRequest
	if msg.Type != protocol.EventJoin || msg.Into(&req) != nil || req.UserName == "" {
		return nil, nil, errNotJoin
	}
	t, ok := s.towns.Get(req.TownID)
	if !ok {
		return nil, nil, town.ErrTownNotFound
	}
	p, _, err := t.Join(ctx, req.UserName)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// reject reports a failed join and closes the connection.
func (s *Server) reject(conn *websocket.Conn, err error) {
	defer conn.Close()
	var msg string
	switch {
	case errors.Is(err, errNotJoin), errors.Is(err, town.ErrTownNotFound),
		errors.Is(err, town.ErrTownFull), errors.Is(err, town.ErrTownClosed):
		msg = err.Error()
	default:
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return
		}
		msg = "malformed join request"
	}
	deadline := time.Now().Add(s.opts.HTTP.WriteTimeout)
	if data, encErr := protocol.Encode(protocol.EventError, protocol.ErrorEvent{Message: msg}); encErr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), deadline)
}

// readPump forwards client frames to the town until the connection fails,
// then leaves the town.
func (s *Server) readPump(conn *websocket.Conn, t *town.Town, p *session.Player, logger *zap.Logger) {
	defer conn.Close()
	defer t.Leave(p.ID)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			logger.Debug("discarding malformed frame", zap.Error(err))
			continue
		}
		if err := t.Handle(p.ID, msg); err != nil {
			return
		}
	}
}

// writePump drains the player's outbound frames. The outbox closing (leave,
// kick or town shutdown) ends the session.
func (s *Server) writePump(conn *websocket.Conn, p *session.Player, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case data, ok := <-p.Outbox.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.HTTP.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, closeFrame(p.Outbox.Reason()))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.HTTP.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeFrame tells the client why the town ended its session.
func closeFrame(reason error) []byte {
	if errors.Is(reason, session.ErrSlowConsumer) {
		return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer")
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}
