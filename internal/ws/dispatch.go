// internal/ws/dispatch.go
//
// Inbound frame routing. Pure over (broker, session, sender, frame),
// so the whole protocol surface is unit-testable without a websocket.
// Error posture per the protocol contract: malformed frames, unknown
// types, and unpaired match-scoped messages all get an error reply and
// the connection stays open. Only leave_matchmaking asks for a close.

package ws

import (
	"encoding/json"
	"strings"

	"github.com/digitduel/server/internal/broker"
	"github.com/digitduel/server/internal/game"
	"github.com/digitduel/server/internal/protocol"
)

const maxNameLength = 24

// dispatch routes one frame. Returns true when the connection should
// be closed afterwards.
func dispatch(b *broker.Broker, sess *broker.Session, sender protocol.Sender, raw []byte) bool {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sender.Send(protocol.Error("malformed message"))
		return false
	}

	switch msg.Type {
	case protocol.TypePing:
		sender.Send(protocol.Pong())

	case protocol.TypeJoinMatchmaking:
		mode, ok := game.ParseMode(msg.Mode)
		if !ok {
			sender.Send(protocol.Error("unknown game mode"))
			return false
		}
		if err := b.QuickMatch(sess, cleanName(msg.Name), mode, sender); err != nil {
			sender.Send(protocol.Error(err.Error()))
		}

	case protocol.TypeCreateRoom:
		mode, ok := game.ParseMode(msg.Mode)
		if !ok {
			sender.Send(protocol.Error("unknown game mode"))
			return false
		}
		if _, err := b.CreateInvite(sess, cleanName(msg.Name), mode, sender); err != nil {
			sender.Send(protocol.Error(err.Error()))
		}

	case protocol.TypeJoinRoom:
		mode, ok := game.ParseMode(msg.Mode)
		if !ok {
			sender.Send(protocol.Error("unknown game mode"))
			return false
		}
		code := strings.ToUpper(strings.TrimSpace(msg.RoomID))
		if err := b.JoinInvite(sess, cleanName(msg.Name), mode, code, sender); err != nil {
			sender.Send(protocol.Error(err.Error()))
		}

	case protocol.TypeSubmitSecret:
		m, role, ok := b.MatchOf(sess)
		if !ok {
			sender.Send(protocol.Error("not in a match"))
			return false
		}
		m.SubmitSecret(role, msg.Secret)

	case protocol.TypeMakeGuess:
		m, role, ok := b.MatchOf(sess)
		if !ok {
			sender.Send(protocol.Error("not in a match"))
			return false
		}
		m.MakeGuess(role, msg.Guess)

	case protocol.TypeLeaveMatchmaking:
		b.Leave(sess)
		return true

	default:
		sender.Send(protocol.Error("unknown message type"))
	}
	return false
}

// cleanName trims and bounds a display name, defaulting when empty.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "anonymous"
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}
