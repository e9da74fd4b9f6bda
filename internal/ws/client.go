// internal/ws/client.go
//
// One websocket connection. The usual two-pump layout: the read pump
// decodes inbound frames and hands them to the dispatcher, the write
// pump drains a buffered outbound channel and keeps the connection
// alive with pings. Send never blocks: a slow client loses messages
// (with a warning) instead of stalling a match.

package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/digitduel/server/internal/broker"
	"github.com/digitduel/server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 32
)

type client struct {
	conn *websocket.Conn
	send chan protocol.ServerMessage
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan protocol.ServerMessage, sendBufferSize)}
}

// Send queues msg for delivery. Implements protocol.Sender.
func (c *client) Send(msg protocol.ServerMessage) {
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("outbound buffer full, dropping message")
	}
}

// shutdown closes the outbound channel exactly once, which in turn
// ends the write pump.
func (c *client) shutdown() {
	c.once.Do(func() { close(c.send) })
}

// readPump consumes inbound frames until the connection dies or the
// dispatcher asks for a close (leave_matchmaking). Runs on the handler
// goroutine; on exit the broker is told the session is gone.
func (c *client) readPump(b *broker.Broker, sess *broker.Session) {
	defer func() {
		b.Disconnect(sess)
		c.shutdown()
		_ = c.conn.Close()
		log.Info().Str("session", sess.ID).Msg("connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", sess.ID).Msg("read error")
			}
			return
		}
		if dispatch(b, sess, c, raw) {
			return
		}
	}
}

// writePump serializes queued messages onto the wire and pings on an
// interval so dead peers get reaped by the read deadline.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
