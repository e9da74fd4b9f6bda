// internal/game/types.go
//
// Core type definitions shared across the duel server.
// Defines:
//   - Role: one of the two fixed seats ("A"/"B") in a match.
//   - Mode: matchmaking/game mode ("infinite"/"limited").
//   - Phase: lifecycle of a match (awaiting secrets → in progress → finished).
//   - GuessRecord: one scored guess in a match log.

package game

// Role identifies one of the two seats in a match.
// Assigned at pairing time and fixed for the life of the match.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// Mode selects the game variant agreed at pairing time.
// Possible values:
//   - "infinite": the match runs until one side cracks the other's code.
//   - "limited":  the match additionally ends in a draw once the shared
//     turn budget is spent (see match.LimitedTurnCap).
type Mode string

const (
	ModeInfinite Mode = "infinite"
	ModeLimited  Mode = "limited"
)

// ParseMode validates a client-supplied mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeInfinite, ModeLimited:
		return Mode(s), true
	}
	return "", false
}

// Phase is the lifecycle state of a match.
type Phase int

const (
	// PhaseAwaitingSecrets: paired, waiting for both sides to lock a secret.
	PhaseAwaitingSecrets Phase = iota
	// PhaseInProgress: both secrets locked, sides alternate guesses.
	PhaseInProgress
	// PhaseFinished: terminal; no further mutation.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingSecrets:
		return "awaiting_secrets"
	case PhaseInProgress:
		return "in_progress"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// GuessRecord is one scored guess, appended to the match log in
// submission order and immutable once appended.
type GuessRecord struct {
	Role  Role   // who guessed
	Code  string // the guess itself
	Bulls int
	Cows  int
}
