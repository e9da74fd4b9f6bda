// internal/protocol/messages.go
//
// Wire protocol for the duel server: one JSON message per frame over a
// persistent bidirectional connection, discriminated by a "type" field.
// Defines:
//   - ClientMessage: the closed set of inbound frames.
//   - ServerMessage: the closed set of outbound frames, with a
//     constructor per variant so payload shapes live in one place.
//   - Sender: the one-method surface a message producer needs; the
//     websocket client implements it, tests fake it.
//
// Messages are transient: constructed per call, never mutated after
// being handed to a Sender.

package protocol

import "github.com/digitduel/server/internal/game"

// Inbound message types (participant → server).
const (
	TypeJoinMatchmaking  = "join_matchmaking"
	TypeCreateRoom       = "create_room"
	TypeJoinRoom         = "join_room"
	TypeSubmitSecret     = "submit_secret"
	TypeMakeGuess        = "make_guess"
	TypeLeaveMatchmaking = "leave_matchmaking"
	TypePing             = "ping"
)

// Outbound message types (server → participant).
const (
	TypeMatchFound     = "match_found"
	TypeRoomCreated    = "room_created"
	TypeRequestSecret  = "request_secret"
	TypeSecretAccepted = "secret_accepted"
	TypeTurnInfo       = "turn_info"
	TypeGuessResult    = "guess_result"
	TypeInvalidMove    = "invalid_move"
	TypeGameOver       = "game_over"
	TypeOpponentLeft   = "opponent_left"
	TypeError          = "error"
	TypePong           = "pong"
)

// Winner values carried by game_over.
const (
	WinnerYou      = "you"
	WinnerOpponent = "opponent"
	WinnerDraw     = "draw"
)

// ClientMessage is a decoded inbound frame. Only the fields relevant to
// the given Type are populated; the rest stay zero.
type ClientMessage struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Mode   string `json:"mode,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Secret string `json:"secret,omitempty"`
	Guess  string `json:"guess,omitempty"`
}

// ServerMessage is an outbound frame. Pointer fields distinguish
// "absent" from legitimate zero values (a guess can score zero bulls).
type ServerMessage struct {
	Type string `json:"type"`

	// match_found
	MatchID      string `json:"matchId,omitempty"`
	OpponentName string `json:"opponentName,omitempty"`
	YouAre       string `json:"youAre,omitempty"`
	GameMode     string `json:"gameMode,omitempty"`

	// room_created
	RoomID string `json:"roomId,omitempty"`

	// turn_info
	YourTurn       *bool  `json:"yourTurn,omitempty"`
	TurnNumber     int    `json:"turnNumber,omitempty"`
	StartingPlayer string `json:"startingPlayer,omitempty"`

	// guess_result
	Guess string `json:"guess,omitempty"`
	Bulls *int   `json:"bulls,omitempty"`
	Cows  *int   `json:"cows,omitempty"`
	By    string `json:"by,omitempty"`

	// invalid_move
	Reason string `json:"reason,omitempty"`

	// game_over
	Winner string `json:"winner,omitempty"`
	Secret string `json:"secret,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Sender delivers outbound messages to one participant.
// Implementations must not block the caller indefinitely.
type Sender interface {
	Send(msg ServerMessage)
}

func MatchFound(matchID, opponentName string, youAre game.Role, mode game.Mode) ServerMessage {
	return ServerMessage{
		Type:         TypeMatchFound,
		MatchID:      matchID,
		OpponentName: opponentName,
		YouAre:       string(youAre),
		GameMode:     string(mode),
	}
}

func RoomCreated(roomID string) ServerMessage {
	return ServerMessage{Type: TypeRoomCreated, RoomID: roomID}
}

func RequestSecret() ServerMessage {
	return ServerMessage{Type: TypeRequestSecret}
}

func SecretAccepted() ServerMessage {
	return ServerMessage{Type: TypeSecretAccepted}
}

func TurnInfo(yourTurn bool, turnNumber int, starting game.Role) ServerMessage {
	return ServerMessage{
		Type:           TypeTurnInfo,
		YourTurn:       &yourTurn,
		TurnNumber:     turnNumber,
		StartingPlayer: string(starting),
	}
}

func GuessResult(guess string, res game.Result, by game.Role) ServerMessage {
	bulls, cows := res.Bulls, res.Cows
	return ServerMessage{
		Type:  TypeGuessResult,
		Guess: guess,
		Bulls: &bulls,
		Cows:  &cows,
		By:    string(by),
	}
}

func InvalidMove(reason string) ServerMessage {
	return ServerMessage{Type: TypeInvalidMove, Reason: reason}
}

// GameOver reveals the secret the recipient was guessing at. Winner is
// WinnerYou, WinnerOpponent, or WinnerDraw.
func GameOver(winner, secret string) ServerMessage {
	return ServerMessage{Type: TypeGameOver, Winner: winner, Secret: secret}
}

func OpponentLeft() ServerMessage {
	return ServerMessage{Type: TypeOpponentLeft}
}

func Error(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

func Pong() ServerMessage {
	return ServerMessage{Type: TypePong}
}
