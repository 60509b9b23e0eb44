package web

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/pet-arena/internal/multiplayer"
)

// wsConn adapts a websocket to multiplayer.Conn.
// The coordinator queues into the embedded ChannelConn; writePump drains it.
type wsConn struct {
	*multiplayer.ChannelConn
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn, sendBuffer int) *wsConn {
	id := multiplayer.ConnID(uuid.NewString())
	return &wsConn{
		ChannelConn: multiplayer.NewChannelConn(id, sendBuffer),
		ws:          ws,
	}
}

// readPump forwards inbound frames and pongs to the coordinator.
// It reports the disconnect when the socket fails or closes.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		c.Close()
		s.coord.Send(multiplayer.DisconnectedEvent{ConnID: c.ID()})
	}()

	c.ws.SetReadLimit(s.config.ReadLimit)
	c.ws.SetPongHandler(func(string) error {
		s.coord.Send(multiplayer.PongEvent{ConnID: c.ID()})
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("unexpected close", "conn", c.ID(), "error", err)
			}
			return
		}
		s.coord.Send(multiplayer.MessageEvent{ConnID: c.ID(), Frame: data})
	}
}

// writePump is the only writer of the socket.
// It drains queued messages and probes, and sends a close frame once the
// connection is closed by either side.
func (s *Server) writePump(c *wsConn) {
	defer c.ws.Close()

	for {
		select {
		case env := <-c.Outbox():
			if !s.write(c, env) {
				c.Close()
				return
			}
		case <-c.Pings():
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("ping failed", "conn", c.ID(), "error", err)
				c.Close()
				return
			}
		case <-c.Done():
			s.flush(c)
			deadline := time.Now().Add(s.config.WriteTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// flush writes whatever was queued before the connection closed.
func (s *Server) flush(c *wsConn) {
	for {
		select {
		case env := <-c.Outbox():
			if !s.write(c, env) {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(c *wsConn, env multiplayer.Envelope) bool {
	data, err := multiplayer.Encode(env)
	if err != nil {
		s.logger.Error("cannot encode message", "conn", c.ID(), "type", env.Type, "error", err)
		return true
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("write failed", "conn", c.ID(), "error", err)
		return false
	}
	return true
}
