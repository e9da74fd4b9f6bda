package ws

import (
	"testing"

	"github.com/digitduel/server/internal/broker"
	"github.com/digitduel/server/internal/protocol"
)

type fakeSender struct {
	msgs []protocol.ServerMessage
}

func (f *fakeSender) Send(m protocol.ServerMessage) { f.msgs = append(f.msgs, m) }

func (f *fakeSender) lastType() string {
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1].Type
}

func newConn() (*broker.Session, *fakeSender) {
	return broker.NewSession(""), &fakeSender{}
}

func TestDispatchMalformedFrame(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	if closed := dispatch(b, sess, s, []byte(`{not json`)); closed {
		t.Error("malformed frame must not close the connection")
	}
	if s.lastType() != protocol.TypeError {
		t.Errorf("reply = %q; want error", s.lastType())
	}
}

func TestDispatchUnknownType(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	dispatch(b, sess, s, []byte(`{"type":"teleport"}`))
	if s.lastType() != protocol.TypeError {
		t.Errorf("reply = %q; want error", s.lastType())
	}
}

func TestDispatchPing(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	dispatch(b, sess, s, []byte(`{"type":"ping"}`))
	if s.lastType() != protocol.TypePong {
		t.Errorf("reply = %q; want pong", s.lastType())
	}
}

func TestDispatchUnpairedMatchMessages(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	dispatch(b, sess, s, []byte(`{"type":"submit_secret","secret":"1234"}`))
	if s.lastType() != protocol.TypeError {
		t.Errorf("unpaired submit_secret reply = %q; want error", s.lastType())
	}
	dispatch(b, sess, s, []byte(`{"type":"make_guess","guess":"1234"}`))
	if s.lastType() != protocol.TypeError {
		t.Errorf("unpaired make_guess reply = %q; want error", s.lastType())
	}
}

func TestDispatchBadMode(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	dispatch(b, sess, s, []byte(`{"type":"join_matchmaking","name":"p","mode":"blitz"}`))
	if s.lastType() != protocol.TypeError {
		t.Errorf("reply = %q; want error", s.lastType())
	}
	if w, _, _ := b.Stats(); w != 0 {
		t.Error("a rejected join must not enqueue")
	}
}

func TestDispatchLeaveClosesConnection(t *testing.T) {
	b := broker.New()
	sess, s := newConn()
	dispatch(b, sess, s, []byte(`{"type":"join_matchmaking","name":"p","mode":"infinite"}`))
	if w, _, _ := b.Stats(); w != 1 {
		t.Fatal("expected one queued entry")
	}
	if closed := dispatch(b, sess, s, []byte(`{"type":"leave_matchmaking"}`)); !closed {
		t.Error("leave_matchmaking should request a close")
	}
	if w, _, _ := b.Stats(); w != 0 {
		t.Error("leave must purge the queue entry")
	}
}

func TestDispatchFullPairingFlow(t *testing.T) {
	b := broker.New()
	sess1, s1 := newConn()
	sess2, s2 := newConn()

	dispatch(b, sess1, s1, []byte(`{"type":"join_matchmaking","name":"petra","mode":"limited"}`))
	dispatch(b, sess2, s2, []byte(`{"type":"join_matchmaking","name":"quinn","mode":"limited"}`))

	var found1, found2 *protocol.ServerMessage
	for i := range s1.msgs {
		if s1.msgs[i].Type == protocol.TypeMatchFound {
			found1 = &s1.msgs[i]
		}
	}
	for i := range s2.msgs {
		if s2.msgs[i].Type == protocol.TypeMatchFound {
			found2 = &s2.msgs[i]
		}
	}
	if found1 == nil || found2 == nil {
		t.Fatal("both connections should get match_found")
	}
	if found1.YouAre != "A" || found2.YouAre != "B" {
		t.Errorf("roles = %q/%q", found1.YouAre, found2.YouAre)
	}

	// match-scoped frames now route to the session's seat
	dispatch(b, sess1, s1, []byte(`{"type":"submit_secret","secret":"1234"}`))
	if s1.lastType() != protocol.TypeSecretAccepted {
		t.Errorf("submit_secret reply = %q; want secret_accepted", s1.lastType())
	}
}

func TestCleanName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  petra  ", "petra"},
		{"", "anonymous"},
		{"   ", "anonymous"},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaa"},
	}
	for _, c := range cases {
		if got := cleanName(c.in); got != c.want {
			t.Errorf("cleanName(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}
