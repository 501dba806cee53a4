// internal/session/session_test.go
package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/store"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type broadcast struct {
	opCode   int64
	data     []byte
	targets  []models.Presence
	sender   models.Presence
	reliable bool
}

// recorder captures Dispatcher calls for assertions.
type recorder struct {
	broadcasts []broadcast
}

func (r *recorder) BroadcastMessage(opCode int64, data []byte, presences []models.Presence, sender models.Presence, reliable bool) {
	r.broadcasts = append(r.broadcasts, broadcast{opCode, data, presences, sender, reliable})
}

func presence(userID, connID string) models.Presence {
	return models.Presence{UserID: userID, ConnID: connID, Username: "u-" + userID}
}

func newTestSession(t *testing.T, st store.Store, maxPlayers int, host string) *Session {
	t.Helper()
	s, err := Init(context.Background(), testLogger(), st, "m1", Params{
		RoomName:   "alpha",
		MaxPlayers: maxPlayers,
		Host:       host,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func TestInitWritesEmptyPropertyRecord(t *testing.T) {
	st := store.NewMemory()
	newTestSession(t, st, 4, "host")

	props, ok, err := st.Properties(context.Background(), "m1")
	if err != nil || !ok {
		t.Fatalf("expected property record after init, ok=%v err=%v", ok, err)
	}
	if len(props) != 0 {
		t.Fatalf("expected empty property record, got %v", props)
	}
}

func TestInitLabel(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")

	var label models.Label
	if err := json.Unmarshal([]byte(s.LabelJSON), &label); err != nil {
		t.Fatalf("label does not decode: %v", err)
	}
	if label.RoomName != "alpha" || label.MaxPlayers != 4 || label.Host != "host" || label.IsPrivate {
		t.Fatalf("unexpected label: %+v", label)
	}
}

func TestJoinAttemptCapacity(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 2, "host")
	ctx := context.Background()

	if err := s.Join(ctx, []models.Presence{presence("host", "c1")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// One seat left: accept exactly one more.
	accept, _, err := s.JoinAttempt(presence("u2", "c2"))
	if err != nil || !accept {
		t.Fatalf("expected accept at size 1/2, got accept=%v err=%v", accept, err)
	}
	if err := s.Join(ctx, []models.Presence{presence("u2", "c2")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	accept, reject, err := s.JoinAttempt(presence("u3", "c3"))
	if err != nil {
		t.Fatalf("join attempt failed: %v", err)
	}
	if accept {
		t.Fatal("expected reject at capacity")
	}
	if reject != RejectRoomFull {
		t.Fatalf("expected reject message %q, got %q", RejectRoomFull, reject)
	}

	// A leave frees the seat again.
	if _, err := s.Leave(ctx, []models.Presence{presence("u2", "c2")}); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	accept, _, _ = s.JoinAttempt(presence("u3", "c3"))
	if !accept {
		t.Fatal("expected accept after leave freed a seat")
	}
}

func TestJoinCreatesDefaultProperties(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()

	if err := s.Join(ctx, []models.Presence{presence("host", "c1"), presence("u2", "c2")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	props, _, _ := st.Properties(ctx, "m1")
	for _, uid := range []string{"host", "u2"} {
		p, ok := props[uid]
		if !ok {
			t.Fatalf("missing property entry for %s", uid)
		}
		if p.IsReady || p.PlayerNumber != nil {
			t.Fatalf("expected default property entry for %s, got %+v", uid, p)
		}
	}
}

func TestJoinPreservesExistingProperties(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()

	n := 2
	if err := st.WriteProperties(ctx, "m1", map[string]models.UserProperty{
		"u2": {IsReady: true, PlayerNumber: &n},
	}); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	// u2 rejoins on a new connection; their entry must survive.
	if err := s.Join(ctx, []models.Presence{presence("u2", "c9")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	props, _, _ := st.Properties(ctx, "m1")
	if !props["u2"].IsReady || props["u2"].PlayerNumber == nil || *props["u2"].PlayerNumber != 2 {
		t.Fatalf("existing entry was clobbered: %+v", props["u2"])
	}
}

func TestLeaveByHostTearsDown(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()

	if err := st.WriteRegistry(ctx, "alpha", "m1"); err != nil {
		t.Fatalf("registry write failed: %v", err)
	}
	if err := s.Join(ctx, []models.Presence{presence("host", "c1"), presence("u2", "c2")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	alive, err := s.Leave(ctx, []models.Presence{presence("host", "c1")})
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if alive {
		t.Fatal("expected teardown when host leaves")
	}

	if _, ok, _ := st.RoomMatch(ctx, "alpha"); ok {
		t.Fatal("room record should be gone after host leave")
	}
	if _, ok, _ := st.MatchRoom(ctx, "m1"); ok {
		t.Fatal("match record should be gone after host leave")
	}
	if _, ok, _ := st.Properties(ctx, "m1"); ok {
		t.Fatal("property record should be gone after host leave")
	}
}

func TestLeaveByGuestKeepsSessionAlive(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()

	if err := s.Join(ctx, []models.Presence{presence("host", "c1"), presence("u2", "c2")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	alive, err := s.Leave(ctx, []models.Presence{presence("u2", "c2")})
	if err != nil || !alive {
		t.Fatalf("expected session to stay alive, alive=%v err=%v", alive, err)
	}
	if _, ok := s.Presences["c2"]; ok {
		t.Fatal("presence c2 should be removed")
	}
	if _, ok := s.Presences["c1"]; !ok {
		t.Fatal("presence c1 should remain")
	}
}

func TestLoopIdleTeardownAtThreshold(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	// 100 empty ticks: still alive.
	for i := 0; i < 100; i++ {
		alive, err := s.Loop(ctx, int64(i), d, nil)
		if err != nil {
			t.Fatalf("loop failed at tick %d: %v", i, err)
		}
		if !alive {
			t.Fatalf("session died early at tick %d", i)
		}
	}
	if s.EmptyTicks != 100 {
		t.Fatalf("expected 100 empty ticks, got %d", s.EmptyTicks)
	}

	// The 101st empty tick tears down.
	alive, err := s.Loop(ctx, 100, d, nil)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if alive {
		t.Fatal("expected teardown after 101 empty ticks")
	}
	if _, ok, _ := st.Properties(ctx, "m1"); ok {
		t.Fatal("property record should be gone after idle teardown")
	}
}

func TestLoopDoesNotCountNonEmptyTicks(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	if err := s.Join(ctx, []models.Presence{presence("host", "c1")}); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.Loop(ctx, int64(i), d, nil); err != nil {
			t.Fatalf("loop failed: %v", err)
		}
	}
	if s.EmptyTicks != 0 {
		t.Fatalf("empty ticks must not advance while occupied, got %d", s.EmptyTicks)
	}
}

func TestDispatchRelaysToAllButSender(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	a, b, c := presence("host", "c1"), presence("u2", "c2"), presence("u3", "c3")
	if err := s.Join(ctx, []models.Presence{a, b, c}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	payload := []byte(`{"move":"x"}`)
	alive, err := s.Loop(ctx, 0, d, []Message{{OpCode: OpTurnEnded, Data: payload, Sender: a}})
	if err != nil || !alive {
		t.Fatalf("loop failed: alive=%v err=%v", alive, err)
	}

	if len(d.broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(d.broadcasts))
	}
	bc := d.broadcasts[0]
	if bc.opCode != OpTurnEnded || string(bc.data) != string(payload) || !bc.reliable {
		t.Fatalf("unexpected broadcast: %+v", bc)
	}
	if len(bc.targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(bc.targets))
	}
	for _, target := range bc.targets {
		if target.ConnID == a.ConnID {
			t.Fatal("sender must not receive its own relay")
		}
	}

	// TurnEnded must not touch the property record.
	props, _, _ := st.Properties(ctx, "m1")
	if props["host"].IsReady {
		t.Fatal("relay-only opcode mutated properties")
	}
}

func TestDispatchUnknownOpcodeRelaysOnly(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	a, b := presence("host", "c1"), presence("u2", "c2")
	if err := s.Join(ctx, []models.Presence{a, b}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if _, err := s.Loop(ctx, 0, d, []Message{{OpCode: 42, Data: []byte(`{}`), Sender: b}}); err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if len(d.broadcasts) != 1 || d.broadcasts[0].opCode != 42 {
		t.Fatalf("unknown opcode should relay unchanged, got %+v", d.broadcasts)
	}
}

func TestPlayerReadyChangedPersists(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	a, b := presence("host", "c1"), presence("u2", "c2")
	if err := s.Join(ctx, []models.Presence{a, b}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	for _, ready := range []bool{true, false, false} {
		payload, _ := json.Marshal(map[string]bool{"is_ready": ready})
		if _, err := s.Loop(ctx, 0, d, []Message{{OpCode: OpPlayerReadyChanged, Data: payload, Sender: b}}); err != nil {
			t.Fatalf("loop failed: %v", err)
		}
		props, _, _ := st.Properties(ctx, "m1")
		if props["u2"].IsReady != ready {
			t.Fatalf("expected isReady=%v, got %v", ready, props["u2"].IsReady)
		}
	}

	// Relay happened on every message regardless of value changes.
	if len(d.broadcasts) != 3 {
		t.Fatalf("expected 3 relays, got %d", len(d.broadcasts))
	}
}

func TestPlayerNumberChangedPersists(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	a := presence("host", "c1")
	if err := s.Join(ctx, []models.Presence{a}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]int{"player_number": 3})
	if _, err := s.Loop(ctx, 0, d, []Message{{OpCode: OpPlayerNumberChanged, Data: payload, Sender: a}}); err != nil {
		t.Fatalf("loop failed: %v", err)
	}

	props, _, _ := st.Properties(ctx, "m1")
	if props["host"].PlayerNumber == nil || *props["host"].PlayerNumber != 3 {
		t.Fatalf("expected playerNumber=3, got %+v", props["host"].PlayerNumber)
	}
}

func TestMalformedActionPayloadIsSkipped(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")
	ctx := context.Background()
	d := &recorder{}

	a := presence("host", "c1")
	if err := s.Join(ctx, []models.Presence{a}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	alive, err := s.Loop(ctx, 0, d, []Message{{OpCode: OpPlayerReadyChanged, Data: []byte("not json"), Sender: a}})
	if err != nil || !alive {
		t.Fatalf("malformed payload must not kill the match: alive=%v err=%v", alive, err)
	}
	props, _, _ := st.Properties(ctx, "m1")
	if props["host"].IsReady {
		t.Fatal("malformed payload must not mutate properties")
	}
}

func TestSignalEchoes(t *testing.T) {
	st := store.NewMemory()
	s := newTestSession(t, st, 4, "host")

	resp := s.Signal("ping")
	if resp != "lobby match signal received: ping" {
		t.Fatalf("unexpected signal response %q", resp)
	}
}
