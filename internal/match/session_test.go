package match

import (
	"math/rand"
	"testing"

	"github.com/digitduel/server/internal/game"
	"github.com/digitduel/server/internal/protocol"
)

// fakeSender records every outbound message for later inspection.
type fakeSender struct {
	msgs []protocol.ServerMessage
}

func (f *fakeSender) Send(m protocol.ServerMessage) { f.msgs = append(f.msgs, m) }

func (f *fakeSender) byType(typ string) []protocol.ServerMessage {
	var out []protocol.ServerMessage
	for _, m := range f.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) lastType() string {
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1].Type
}

const (
	secretA = "1234"
	secretB = "5678"
	// valid, and never four bulls against either secret above
	neutralGuess = "0123"
)

func newTestMatch(t *testing.T, mode game.Mode, opts ...Option) (*Match, *fakeSender, *fakeSender) {
	t.Helper()
	sa, sb := &fakeSender{}, &fakeSender{}
	opts = append(opts, WithRand(rand.New(rand.NewSource(42))))
	m := New("m-test", mode,
		Participant{SessionID: "sess-a", Name: "alice", Sender: sa},
		Participant{SessionID: "sess-b", Name: "bob", Sender: sb},
		opts...)
	return m, sa, sb
}

// startDuel submits both secrets and returns the starting role, read
// back from the emitted turn_info rather than assumed from the seed.
func startDuel(t *testing.T, m *Match, sa, sb *fakeSender) game.Role {
	t.Helper()
	m.SubmitSecret(game.RoleA, secretA)
	m.SubmitSecret(game.RoleB, secretB)
	infos := sa.byType(protocol.TypeTurnInfo)
	if len(infos) != 1 {
		t.Fatalf("seat A got %d turn_info messages; want 1", len(infos))
	}
	return game.Role(infos[0].StartingPlayer)
}

func TestRequestSecretBroadcastOnConstruction(t *testing.T) {
	_, sa, sb := newTestMatch(t, game.ModeInfinite)
	for name, s := range map[string]*fakeSender{"A": sa, "B": sb} {
		if got := len(s.byType(protocol.TypeRequestSecret)); got != 1 {
			t.Errorf("seat %s got %d request_secret; want 1", name, got)
		}
	}
}

func TestSubmitSecretInvalid(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	for _, bad := range []string{"112", "abcd", "1123", "12345"} {
		m.SubmitSecret(game.RoleA, bad)
	}
	if got := len(sa.byType(protocol.TypeError)); got != 4 {
		t.Errorf("seat A got %d error replies; want 4", got)
	}
	if len(sa.byType(protocol.TypeSecretAccepted)) != 0 {
		t.Error("invalid secret must not be accepted")
	}
	if len(sb.byType(protocol.TypeError)) != 0 {
		t.Error("errors must go to the sender only")
	}
	if m.Phase() != game.PhaseAwaitingSecrets {
		t.Errorf("phase = %v; want awaiting secrets", m.Phase())
	}
}

func TestSecretImmutableOnceAccepted(t *testing.T) {
	m, sa, _ := newTestMatch(t, game.ModeInfinite)
	m.SubmitSecret(game.RoleA, secretA)
	m.SubmitSecret(game.RoleA, "9876")
	if got := sa.lastType(); got != protocol.TypeError {
		t.Errorf("resubmission reply = %q; want error", got)
	}
	if got := len(sa.byType(protocol.TypeSecretAccepted)); got != 1 {
		t.Errorf("secret_accepted count = %d; want 1", got)
	}
}

func TestBothSecretsStartMatch(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	start := startDuel(t, m, sa, sb)

	if m.Phase() != game.PhaseInProgress {
		t.Fatalf("phase = %v; want in progress", m.Phase())
	}
	ia, ib := sa.byType(protocol.TypeTurnInfo), sb.byType(protocol.TypeTurnInfo)
	if len(ia) != 1 || len(ib) != 1 {
		t.Fatalf("turn_info counts = %d/%d; want exactly one each", len(ia), len(ib))
	}
	if ia[0].StartingPlayer != ib[0].StartingPlayer {
		t.Errorf("startingPlayer differs between seats: %q vs %q", ia[0].StartingPlayer, ib[0].StartingPlayer)
	}
	if ia[0].TurnNumber != 1 || ib[0].TurnNumber != 1 {
		t.Errorf("turnNumber = %d/%d; want 1", ia[0].TurnNumber, ib[0].TurnNumber)
	}
	if *ia[0].YourTurn == *ib[0].YourTurn {
		t.Error("exactly one seat should be told it is their turn")
	}
	if *ia[0].YourTurn != (start == game.RoleA) {
		t.Error("yourTurn must agree with startingPlayer")
	}
}

func TestGuessBeforeSecrets(t *testing.T) {
	m, sa, _ := newTestMatch(t, game.ModeInfinite)
	m.MakeGuess(game.RoleA, neutralGuess)
	if got := sa.lastType(); got != protocol.TypeInvalidMove {
		t.Errorf("guess before start replied %q; want invalid_move", got)
	}
}

func TestTurnAlternation(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	current := startDuel(t, m, sa, sb)
	senders := map[game.Role]*fakeSender{game.RoleA: sa, game.RoleB: sb}

	for i := 1; i <= 6; i++ {
		if m.TurnNumber() != i {
			t.Fatalf("turnNumber before guess %d = %d", i, m.TurnNumber())
		}
		m.MakeGuess(current, neutralGuess)
		current = current.Opponent()
	}
	if m.TurnNumber() != 7 {
		t.Errorf("turnNumber after 6 guesses = %d; want 7", m.TurnNumber())
	}
	// 1 initial + 6 post-guess turn_info per seat, alternating yourTurn
	for role, s := range senders {
		infos := s.byType(protocol.TypeTurnInfo)
		if len(infos) != 7 {
			t.Fatalf("seat %s turn_info count = %d; want 7", role, len(infos))
		}
		for j := 1; j < len(infos); j++ {
			if infos[j].TurnNumber != infos[j-1].TurnNumber+1 {
				t.Errorf("seat %s turnNumber did not increase by 1: %d → %d", role, infos[j-1].TurnNumber, infos[j].TurnNumber)
			}
			if *infos[j].YourTurn == *infos[j-1].YourTurn {
				t.Errorf("seat %s yourTurn did not alternate at step %d", role, j)
			}
		}
	}
	if got := len(sa.byType(protocol.TypeGuessResult)); got != 6 {
		t.Errorf("guess_result broadcast count = %d; want 6", got)
	}
}

func TestOutOfTurnGuess(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	current := startDuel(t, m, sa, sb)
	other := current.Opponent()
	senders := map[game.Role]*fakeSender{game.RoleA: sa, game.RoleB: sb}

	m.MakeGuess(other, neutralGuess)
	if got := senders[other].lastType(); got != protocol.TypeInvalidMove {
		t.Errorf("out-of-turn reply = %q; want invalid_move", got)
	}
	if m.TurnNumber() != 1 {
		t.Errorf("turnNumber changed on rejected guess: %d", m.TurnNumber())
	}
	if len(sa.byType(protocol.TypeGuessResult)) != 0 {
		t.Error("rejected guess must not broadcast a result")
	}
	// the actual current seat can still play
	m.MakeGuess(current, neutralGuess)
	if len(sa.byType(protocol.TypeGuessResult)) != 1 {
		t.Error("legal guess after rejection should be scored")
	}
}

func TestInvalidGuessCode(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	current := startDuel(t, m, sa, sb)
	senders := map[game.Role]*fakeSender{game.RoleA: sa, game.RoleB: sb}

	m.MakeGuess(current, "11a2")
	if got := senders[current].lastType(); got != protocol.TypeInvalidMove {
		t.Errorf("bad code reply = %q; want invalid_move", got)
	}
	if m.TurnNumber() != 1 {
		t.Errorf("turnNumber changed on bad code: %d", m.TurnNumber())
	}
}

func TestWinFlow(t *testing.T) {
	var finished []Outcome
	m, sa, sb := newTestMatch(t, game.ModeInfinite,
		WithFinishHandler(func(o Outcome) { finished = append(finished, o) }))
	current := startDuel(t, m, sa, sb)
	senders := map[game.Role]*fakeSender{game.RoleA: sa, game.RoleB: sb}

	target := secretB
	if current == game.RoleB {
		target = secretA
	}
	m.MakeGuess(current, target)

	results := senders[current].byType(protocol.TypeGuessResult)
	if len(results) != 1 || *results[0].Bulls != 4 || *results[0].Cows != 0 {
		t.Fatalf("winning guess_result = %+v", results)
	}
	winMsgs := senders[current].byType(protocol.TypeGameOver)
	loseMsgs := senders[current.Opponent()].byType(protocol.TypeGameOver)
	if len(winMsgs) != 1 || winMsgs[0].Winner != protocol.WinnerYou {
		t.Errorf("winner game_over = %+v", winMsgs)
	}
	if len(loseMsgs) != 1 || loseMsgs[0].Winner != protocol.WinnerOpponent {
		t.Errorf("loser game_over = %+v", loseMsgs)
	}
	if winMsgs[0].Secret != target || loseMsgs[0].Secret != target {
		t.Error("game_over must reveal the cracked secret to both seats")
	}
	if m.Phase() != game.PhaseFinished {
		t.Errorf("phase = %v; want finished", m.Phase())
	}
	if len(finished) != 1 || finished[0].Reason != ReasonWin || finished[0].Winner != current {
		t.Errorf("finish handler outcomes = %+v", finished)
	}

	// terminal state rejects everything without mutation
	m.MakeGuess(current.Opponent(), neutralGuess)
	if got := senders[current.Opponent()].lastType(); got != protocol.TypeInvalidMove {
		t.Errorf("post-game guess reply = %q; want invalid_move", got)
	}
	m.SubmitSecret(current, "9876")
	if got := senders[current].lastType(); got != protocol.TypeInvalidMove {
		t.Errorf("post-game secret reply = %q; want invalid_move", got)
	}
	if len(finished) != 1 {
		t.Errorf("finish handler ran %d times; want once", len(finished))
	}
}

func TestDisconnectFinalizes(t *testing.T) {
	var finished []Outcome
	m, sa, sb := newTestMatch(t, game.ModeInfinite,
		WithFinishHandler(func(o Outcome) { finished = append(finished, o) }))
	startDuel(t, m, sa, sb)

	m.HandleDisconnect(game.RoleA)
	if got := len(sb.byType(protocol.TypeOpponentLeft)); got != 1 {
		t.Errorf("remaining seat got %d opponent_left; want 1", got)
	}
	if len(sa.byType(protocol.TypeOpponentLeft)) != 0 {
		t.Error("departing seat must get nothing")
	}
	if m.Phase() != game.PhaseFinished {
		t.Errorf("phase = %v; want finished", m.Phase())
	}
	if len(finished) != 1 || finished[0].Reason != ReasonAbandoned || finished[0].Winner != game.RoleB {
		t.Errorf("outcome = %+v", finished)
	}

	// idempotent once finished
	m.HandleDisconnect(game.RoleB)
	if len(sa.byType(protocol.TypeOpponentLeft)) != 0 || len(sb.byType(protocol.TypeOpponentLeft)) != 1 {
		t.Error("disconnect after finish must not notify anyone")
	}
	if len(finished) != 1 {
		t.Errorf("finish handler ran %d times; want once", len(finished))
	}
}

func TestDisconnectWhileAwaitingSecrets(t *testing.T) {
	m, _, sb := newTestMatch(t, game.ModeInfinite)
	m.SubmitSecret(game.RoleA, secretA)
	m.HandleDisconnect(game.RoleA)
	if got := len(sb.byType(protocol.TypeOpponentLeft)); got != 1 {
		t.Errorf("remaining seat got %d opponent_left; want 1", got)
	}
	if m.Phase() != game.PhaseFinished {
		t.Errorf("phase = %v; want finished", m.Phase())
	}
}

func TestLimitedModeDraw(t *testing.T) {
	var finished []Outcome
	m, sa, sb := newTestMatch(t, game.ModeLimited,
		WithFinishHandler(func(o Outcome) { finished = append(finished, o) }))
	current := startDuel(t, m, sa, sb)
	senders := map[game.Role]*fakeSender{game.RoleA: sa, game.RoleB: sb}

	for i := 1; i < LimitedTurnCap; i++ {
		m.MakeGuess(current, neutralGuess)
		current = current.Opponent()
	}
	if m.TurnNumber() != LimitedTurnCap {
		t.Fatalf("turnNumber = %d; want %d", m.TurnNumber(), LimitedTurnCap)
	}
	if m.Phase() != game.PhaseInProgress {
		t.Fatal("match ended before the cap was spent")
	}

	// the final budgeted guess misses: draw
	m.MakeGuess(current, neutralGuess)
	if m.Phase() != game.PhaseFinished {
		t.Fatal("match should finish when the turn cap is spent")
	}
	for role, s := range senders {
		overs := s.byType(protocol.TypeGameOver)
		if len(overs) != 1 || overs[0].Winner != protocol.WinnerDraw {
			t.Errorf("seat %s game_over = %+v; want one draw", role, overs)
		}
		want := secretB
		if role == game.RoleB {
			want = secretA
		}
		if overs[0].Secret != want {
			t.Errorf("seat %s revealed secret = %q; want %q", role, overs[0].Secret, want)
		}
	}
	if len(finished) != 1 || finished[0].Reason != ReasonDraw || finished[0].Winner != "" || finished[0].Turns != LimitedTurnCap {
		t.Errorf("outcome = %+v", finished)
	}
}

func TestInfiniteModeIgnoresCap(t *testing.T) {
	m, sa, sb := newTestMatch(t, game.ModeInfinite)
	current := startDuel(t, m, sa, sb)
	for i := 0; i < LimitedTurnCap+3; i++ {
		m.MakeGuess(current, neutralGuess)
		current = current.Opponent()
	}
	if m.Phase() != game.PhaseInProgress {
		t.Errorf("infinite mode must not end at the cap; phase = %v", m.Phase())
	}
	if m.TurnNumber() != LimitedTurnCap+4 {
		t.Errorf("turnNumber = %d; want %d", m.TurnNumber(), LimitedTurnCap+4)
	}
}
