// internal/broker/broker.go
//
// Session broker: pairs participants into matches.
// Responsibilities:
//   - FIFO waiting queue per mode for quick matches.
//   - Pending-invite table for room codes, unique against both live
//     match ids and other pending invites.
//   - Match registry: creating sessions' roles, routing match-scoped
//     frames, tearing the mapping down on finish or disconnect.
//   - Best-effort history recording of finished matches.
//
// Concurrency: a single mutex guards queue, invites, and the match
// table; every operation is one critical section, so pairing is
// exactly-once. The broker never calls into a match while holding its
// own lock, and match finish callbacks re-enter the broker only after
// the match lock is released. Lock order is therefore always
// broker → match or match → broker, never nested.

package broker

import (
	"context"
	"crypto/rand"
	"errors"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/digitduel/server/internal/game"
	"github.com/digitduel/server/internal/match"
	"github.com/digitduel/server/internal/protocol"
)

// Room codes: 6 characters from a 32-symbol alphabet that omits the
// easily confused I, L, O, and U (Crockford base32).
const (
	roomCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	roomCodeLength   = 6
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrModeMismatch   = errors.New("room mode does not match")
	ErrSelfJoin       = errors.New("cannot join your own room")
	ErrAlreadyInMatch = errors.New("already in a match")
)

// Recorder persists finished-match outcomes. Implementations must be
// safe for concurrent use; failures are logged, never surfaced to
// participants.
type Recorder interface {
	RecordOutcome(ctx context.Context, o match.Outcome) error
}

type waitingEntry struct {
	sess   *Session
	sender protocol.Sender
}

type pendingInvite struct {
	code   string
	sess   *Session
	sender protocol.Sender
}

type matchEntry struct {
	m    *match.Match
	a, b *Session
}

// Broker owns the waiting queue, pending invites, and live matches.
type Broker struct {
	mu      sync.Mutex
	waiting []*waitingEntry
	invites map[string]*pendingInvite
	matches map[string]*matchEntry

	recorder    Recorder
	rng         *mrand.Rand
	newMatchID  func() string
	newRoomCode func() string
}

// Option configures a Broker.
type Option func(*Broker)

// WithRecorder wires a history store for finished matches.
func WithRecorder(r Recorder) Option {
	return func(b *Broker) { b.recorder = r }
}

// WithRand injects the randomness source handed down to matches for
// starting-seat selection.
func WithRand(r *mrand.Rand) Option {
	return func(b *Broker) { b.rng = r }
}

// WithMatchIDGen overrides quick-match id generation (tests).
func WithMatchIDGen(fn func() string) Option {
	return func(b *Broker) { b.newMatchID = fn }
}

// WithRoomCodeGen overrides room-code generation (tests).
func WithRoomCodeGen(fn func() string) Option {
	return func(b *Broker) { b.newRoomCode = fn }
}

// New constructs a Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		invites: make(map[string]*pendingInvite),
		matches: make(map[string]*matchEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	if b.newMatchID == nil {
		b.newMatchID = uuid.NewString
	}
	if b.newRoomCode == nil {
		b.newRoomCode = randomRoomCode
	}
	return b
}

// randomRoomCode draws 6 symbols from the room-code alphabet.
func randomRoomCode() string {
	var buf [roomCodeLength]byte
	_, _ = rand.Read(buf[:])
	for i, c := range buf {
		buf[i] = roomCodeAlphabet[int(c)%len(roomCodeAlphabet)]
	}
	return string(buf[:])
}

// QuickMatch pairs sess with the earliest-enqueued participant waiting
// on the same mode, or enqueues it when none is waiting. A session
// never holds two queue entries at once.
func (b *Broker) QuickMatch(sess *Session, name string, mode game.Mode, sender protocol.Sender) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess.MatchID != "" {
		return ErrAlreadyInMatch
	}
	sess.Name = name
	sess.Mode = mode
	b.purgeIntentsLocked(sess)

	for i, entry := range b.waiting {
		if entry.sess.Mode != mode {
			continue
		}
		b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
		b.pairLocked(b.uniqueMatchIDLocked(), mode, entry.sess, entry.sender, sess, sender)
		return nil
	}

	b.waiting = append(b.waiting, &waitingEntry{sess: sess, sender: sender})
	log.Debug().Str("session", sess.ID).Str("mode", string(mode)).Msg("enqueued for quick match")
	return nil
}

// CreateInvite stores a pending invite for sess and tells the host the
// room code. The code collides with neither a live match id nor any
// other pending invite at generation time.
func (b *Broker) CreateInvite(sess *Session, name string, mode game.Mode, sender protocol.Sender) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess.MatchID != "" {
		return "", ErrAlreadyInMatch
	}
	sess.Name = name
	sess.Mode = mode
	b.purgeIntentsLocked(sess)

	var code string
	for {
		code = b.newRoomCode()
		if _, taken := b.invites[code]; taken {
			continue
		}
		if _, taken := b.matches[code]; taken {
			continue
		}
		break
	}
	b.invites[code] = &pendingInvite{code: code, sess: sess, sender: sender}
	sender.Send(protocol.RoomCreated(code))
	log.Debug().Str("session", sess.ID).Str("room", code).Msg("room created")
	return code, nil
}

// JoinInvite consumes the invite for code and starts a match with the
// host as seat A and the joiner as seat B, reusing the code as the
// match id. On a mode mismatch the invite stays available for a
// corrected retry.
func (b *Broker) JoinInvite(sess *Session, name string, mode game.Mode, code string, sender protocol.Sender) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess.MatchID != "" {
		return ErrAlreadyInMatch
	}
	inv, ok := b.invites[code]
	if !ok {
		return ErrRoomNotFound
	}
	if inv.sess == sess {
		return ErrSelfJoin
	}
	if inv.sess.Mode != mode {
		return ErrModeMismatch
	}

	sess.Name = name
	sess.Mode = mode
	b.purgeIntentsLocked(sess)
	delete(b.invites, code)
	b.pairLocked(code, mode, inv.sess, inv.sender, sess, sender)
	return nil
}

// Leave drops any waiting-queue entry and pending invite owned by sess.
// The gateway closes the connection afterwards.
func (b *Broker) Leave(sess *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeIntentsLocked(sess)
}

// Disconnect removes sess from the queue and invite table and, when it
// belongs to a live match, finalizes that match. The match mapping is
// discarded by the finish callback.
func (b *Broker) Disconnect(sess *Session) {
	b.mu.Lock()
	b.purgeIntentsLocked(sess)
	var m *match.Match
	role := sess.Role
	if e, ok := b.matches[sess.MatchID]; ok {
		m = e.m
	}
	b.mu.Unlock()

	// outside the broker lock: HandleDisconnect takes the match lock and
	// its finish callback re-enters the broker
	if m != nil {
		m.HandleDisconnect(role)
	}
}

// MatchOf resolves the live match and seat for a session, for routing
// match-scoped frames.
func (b *Broker) MatchOf(sess *Session) (*match.Match, game.Role, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.matches[sess.MatchID]
	if !ok {
		return nil, "", false
	}
	return e.m, sess.Role, true
}

// Stats reports queue, invite, and live-match counts for diagnostics.
func (b *Broker) Stats() (waiting, invites, matches int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiting), len(b.invites), len(b.matches)
}

// pairLocked assigns seats, announces the match to both participants,
// and boots the match state machine. Caller holds b.mu. The first-in
// participant (queue entry or invite host) is always seat A.
func (b *Broker) pairLocked(id string, mode game.Mode, first *Session, firstSender protocol.Sender, second *Session, secondSender protocol.Sender) {
	first.Role = game.RoleA
	first.MatchID = id
	second.Role = game.RoleB
	second.MatchID = id

	firstSender.Send(protocol.MatchFound(id, second.Name, game.RoleA, mode))
	secondSender.Send(protocol.MatchFound(id, first.Name, game.RoleB, mode))

	m := match.New(id, mode,
		match.Participant{SessionID: first.ID, UserID: first.UserID, Name: first.Name, Sender: firstSender},
		match.Participant{SessionID: second.ID, UserID: second.UserID, Name: second.Name, Sender: secondSender},
		match.WithRand(mrand.New(mrand.NewSource(b.rng.Int63()))),
		match.WithFinishHandler(b.onMatchFinished),
	)
	b.matches[id] = &matchEntry{m: m, a: first, b: second}
	log.Info().Str("match", id).Str("mode", string(mode)).
		Str("playerA", first.Name).Str("playerB", second.Name).Msg("match created")
}

// uniqueMatchIDLocked generates a quick-match id, retrying past
// collisions with live matches and pending invites. Caller holds b.mu.
func (b *Broker) uniqueMatchIDLocked() string {
	for {
		id := b.newMatchID()
		if _, taken := b.matches[id]; taken {
			continue
		}
		if _, taken := b.invites[id]; taken {
			continue
		}
		return id
	}
}

// purgeIntentsLocked removes sess's queue entry and any invite it
// hosts. Caller holds b.mu.
func (b *Broker) purgeIntentsLocked(sess *Session) {
	for i, entry := range b.waiting {
		if entry.sess == sess {
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			break
		}
	}
	for code, inv := range b.invites {
		if inv.sess == sess {
			delete(b.invites, code)
		}
	}
}

// onMatchFinished drops the match mapping so both sessions can pair
// again, then records the outcome.
func (b *Broker) onMatchFinished(o match.Outcome) {
	b.mu.Lock()
	if e, ok := b.matches[o.MatchID]; ok {
		e.a.Role, e.a.MatchID = "", ""
		e.b.Role, e.b.MatchID = "", ""
		delete(b.matches, o.MatchID)
	}
	b.mu.Unlock()

	if b.recorder == nil {
		return
	}
	// skip matches abandoned before any guess was scored
	if o.Reason == match.ReasonAbandoned && o.Turns == 0 {
		return
	}
	if err := b.recorder.RecordOutcome(context.Background(), o); err != nil {
		log.Warn().Err(err).Str("match", o.MatchID).Msg("record match outcome")
	}
}
