// internal/ws/gateway.go
//
// Connection gateway: upgrades HTTP requests to websockets, mints a
// session record per connection, and runs the pumps. Origin policy
// mirrors the HTTP CORS setup: a single allowed client origin from the
// environment, defaulting to the local dev client.

package ws

import (
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/digitduel/server/internal/broker"
)

// Gateway terminates websocket connections for the duel protocol.
type Gateway struct {
	broker   *broker.Broker
	upgrader websocket.Upgrader
}

// NewGateway constructs a Gateway bound to b.
func NewGateway(b *broker.Broker) *Gateway {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return &Gateway{
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return o == "" || o == origin || origin == "*"
			},
		},
	}
}

// Serve upgrades the request and runs the connection until it closes.
// userID is empty for guests; authenticated users get their finished
// matches recorded against their account.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sess := broker.NewSession(userID)
	log.Info().Str("session", sess.ID).Bool("authenticated", userID != "").Msg("connection opened")

	c := newClient(conn)
	go c.writePump()
	c.readPump(g.broker, sess)
}
