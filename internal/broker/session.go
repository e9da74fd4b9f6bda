// internal/broker/session.go
//
// Connection-scoped session record. Created by the gateway on connect
// and passed by pointer into broker calls; the transport layer never
// writes to it. Pairing fields (Role, MatchID) are owned by the broker
// and only read through broker-locked accessors.

package broker

import (
	"github.com/google/uuid"

	"github.com/digitduel/server/internal/game"
)

// Session is one connected participant.
type Session struct {
	ID     string
	UserID string // empty for guests
	Name   string
	Mode   game.Mode

	// set by the broker at pairing time, cleared when the match ends
	Role    game.Role
	MatchID string
}

// NewSession mints a session for a fresh connection.
func NewSession(userID string) *Session {
	return &Session{ID: uuid.NewString(), UserID: userID}
}
