// internal/match/session.go
//
// One paired duel session: secret intake, strict turn alternation,
// guess scoring, win/draw detection, and disconnect finalization.
// Responsibilities:
//   - Drive the three-phase state machine
//     (awaiting secrets → in progress → finished).
//   - Emit every outbound message the two seats see during a match.
//   - Serialize each state transition, message emission included,
//     behind a per-match mutex so interleaved frames for the same
//     match apply atomically, in arrival order.
//
// Notes:
//   - Senders never block (the gateway buffers and drops on overflow),
//     so sending while holding the match lock is safe.
//   - The session never blocks waiting for the opponent: every entry
//     point completes synchronously.
//   - The finish handler runs after the match lock is released, so it
//     may safely call back into the broker.

package match

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/digitduel/server/internal/game"
	"github.com/digitduel/server/internal/protocol"
)

// LimitedTurnCap is the total number of evaluated guesses a limited-mode
// match allows (both seats combined). A non-winning guess that spends
// the last turn ends the match in a draw.
const LimitedTurnCap = 20

// Finish reasons recorded in the outcome.
const (
	ReasonWin       = "win"
	ReasonDraw      = "draw"
	ReasonAbandoned = "abandoned"
)

// Participant identifies one seat's occupant and the channel back to it.
type Participant struct {
	SessionID string
	UserID    string // empty for guests
	Name      string
	Sender    protocol.Sender
}

// Outcome is the immutable result of a finished match, handed to the
// finish handler for bookkeeping (history, stats).
type Outcome struct {
	MatchID string
	Mode    game.Mode
	Winner  game.Role // empty on a draw
	Reason  string
	Turns   int // evaluated guesses
	A, B    Participant
}

type seat struct {
	Participant
	secret string
}

// Match is the state machine for one duel.
type Match struct {
	mu           sync.Mutex
	id           string
	mode         game.Mode
	seats        map[game.Role]*seat
	phase        game.Phase
	currentTurn  game.Role
	startingRole game.Role
	turnNumber   int
	log          []game.GuessRecord

	rng      *rand.Rand
	onFinish func(Outcome)
}

// Option configures a Match at construction time.
type Option func(*Match)

// WithRand injects the randomness source used to pick the starting
// seat, so tests can fix outcomes.
func WithRand(r *rand.Rand) Option {
	return func(m *Match) { m.rng = r }
}

// WithFinishHandler registers a callback invoked exactly once when the
// match reaches its terminal phase. It runs outside the match lock.
func WithFinishHandler(fn func(Outcome)) Option {
	return func(m *Match) { m.onFinish = fn }
}

// New constructs a match in the awaiting-secrets phase and immediately
// asks both seats for their secret.
func New(id string, mode game.Mode, a, b Participant, opts ...Option) *Match {
	m := &Match{
		id:    id,
		mode:  mode,
		seats: map[game.Role]*seat{game.RoleA: {Participant: a}, game.RoleB: {Participant: b}},
		phase: game.PhaseAwaitingSecrets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m.broadcast(protocol.RequestSecret())
	return m
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Mode returns the agreed game mode.
func (m *Match) Mode() game.Mode { return m.mode }

// Phase returns the current lifecycle phase.
func (m *Match) Phase() game.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// TurnNumber returns the number of the turn being played (1-based).
func (m *Match) TurnNumber() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnNumber
}

// Log returns a copy of the scored-guess history so far.
func (m *Match) Log() []game.GuessRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.GuessRecord, len(m.log))
	copy(out, m.log)
	return out
}

// SubmitSecret stores role's secret. An invalid code is reported to the
// sender only and changes nothing. When both secrets are in, the match
// picks a starting seat at random and moves to the in-progress phase.
func (m *Match) SubmitSecret(role game.Role, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sender := m.seats[role].Sender

	switch m.phase {
	case game.PhaseFinished:
		sender.Send(protocol.InvalidMove("game already finished"))
		return
	case game.PhaseInProgress:
		sender.Send(protocol.Error("secrets are already locked"))
		return
	}

	if m.seats[role].secret != "" {
		sender.Send(protocol.Error("secret already set"))
		return
	}
	if !game.IsValidCode(code) {
		sender.Send(protocol.Error("secret must be 4 digits with no repeats"))
		return
	}

	m.seats[role].secret = code
	sender.Send(protocol.SecretAccepted())

	if m.seats[role.Opponent()].secret == "" {
		return
	}
	m.startingRole = game.RoleA
	if m.rng.Intn(2) == 1 {
		m.startingRole = game.RoleB
	}
	m.currentTurn = m.startingRole
	m.turnNumber = 1
	m.phase = game.PhaseInProgress
	log.Debug().Str("match", m.id).Str("starting", string(m.startingRole)).Msg("match started")
	m.sendTurnInfoLocked()
}

// MakeGuess scores role's guess against the opponent's secret.
// Out-of-turn, malformed, and post-game guesses are rejected with an
// invalid_move and leave the state untouched.
func (m *Match) MakeGuess(role game.Role, code string) {
	m.mu.Lock()
	sender := m.seats[role].Sender

	switch m.phase {
	case game.PhaseFinished:
		m.mu.Unlock()
		sender.Send(protocol.InvalidMove("game already finished"))
		return
	case game.PhaseAwaitingSecrets:
		m.mu.Unlock()
		sender.Send(protocol.InvalidMove("match has not started"))
		return
	}

	if role != m.currentTurn {
		m.mu.Unlock()
		sender.Send(protocol.InvalidMove("not your turn"))
		return
	}
	if !game.IsValidCode(code) {
		m.mu.Unlock()
		sender.Send(protocol.InvalidMove("guess must be 4 digits with no repeats"))
		return
	}
	opponent := role.Opponent()
	secret := m.seats[opponent].secret
	if secret == "" {
		// unreachable given the phase guard; kept as a tripwire
		m.mu.Unlock()
		sender.Send(protocol.InvalidMove("opponent secret missing"))
		return
	}

	res := game.Score(secret, code)
	m.log = append(m.log, game.GuessRecord{Role: role, Code: code, Bulls: res.Bulls, Cows: res.Cows})
	m.broadcastLocked(protocol.GuessResult(code, res, role))

	won := res.Bulls == game.CodeLength
	drawn := !won && m.mode == game.ModeLimited && m.turnNumber >= LimitedTurnCap

	var outcome *Outcome
	switch {
	case won:
		m.phase = game.PhaseFinished
		sender.Send(protocol.GameOver(protocol.WinnerYou, secret))
		m.seats[opponent].Sender.Send(protocol.GameOver(protocol.WinnerOpponent, secret))
		outcome = m.outcomeLocked(role, ReasonWin)
	case drawn:
		m.phase = game.PhaseFinished
		// each seat learns the code it was chasing
		sender.Send(protocol.GameOver(protocol.WinnerDraw, secret))
		m.seats[opponent].Sender.Send(protocol.GameOver(protocol.WinnerDraw, m.seats[role].secret))
		outcome = m.outcomeLocked("", ReasonDraw)
	default:
		m.currentTurn = opponent
		m.turnNumber++
		m.sendTurnInfoLocked()
	}
	m.mu.Unlock()

	if outcome != nil {
		m.finish(*outcome)
	}
}

// HandleDisconnect finalizes the match when one seat's connection goes
// away. The remaining seat gets exactly one opponent_left; nothing is
// sent to the departing side. Valid from any phase; a no-op once
// finished.
func (m *Match) HandleDisconnect(role game.Role) {
	m.mu.Lock()
	if m.phase == game.PhaseFinished {
		m.mu.Unlock()
		return
	}
	m.phase = game.PhaseFinished
	m.seats[role.Opponent()].Sender.Send(protocol.OpponentLeft())
	outcome := m.outcomeLocked(role.Opponent(), ReasonAbandoned)
	m.mu.Unlock()

	m.finish(*outcome)
}

// outcomeLocked snapshots the terminal result. Caller holds m.mu.
func (m *Match) outcomeLocked(winner game.Role, reason string) *Outcome {
	return &Outcome{
		MatchID: m.id,
		Mode:    m.mode,
		Winner:  winner,
		Reason:  reason,
		Turns:   len(m.log),
		A:       m.seats[game.RoleA].Participant,
		B:       m.seats[game.RoleB].Participant,
	}
}

func (m *Match) finish(o Outcome) {
	log.Info().
		Str("match", m.id).
		Str("reason", o.Reason).
		Str("winner", string(o.Winner)).
		Int("turns", o.Turns).
		Msg("match finished")
	if m.onFinish != nil {
		m.onFinish(o)
	}
}

// sendTurnInfoLocked tells both seats whose turn it is. Caller holds m.mu.
func (m *Match) sendTurnInfoLocked() {
	m.seats[game.RoleA].Sender.Send(protocol.TurnInfo(m.currentTurn == game.RoleA, m.turnNumber, m.startingRole))
	m.seats[game.RoleB].Sender.Send(protocol.TurnInfo(m.currentTurn == game.RoleB, m.turnNumber, m.startingRole))
}

// broadcast sends msg to both seats without holding the lock; used only
// during construction, before the match is shared.
func (m *Match) broadcast(msg protocol.ServerMessage) {
	m.seats[game.RoleA].Sender.Send(msg)
	m.seats[game.RoleB].Sender.Send(msg)
}

// broadcastLocked sends msg to both seats. Caller holds m.mu.
func (m *Match) broadcastLocked(msg protocol.ServerMessage) {
	m.seats[game.RoleA].Sender.Send(msg)
	m.seats[game.RoleB].Sender.Send(msg)
}
