// internal/session/engine.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/store"
)

// ErrMatchNotFound is returned for operations against a match id that is not
// (or no longer) hosted by this engine.
var ErrMatchNotFound = errors.New("match not found")

const defaultListLimit = 100

// Engine hosts live matches. Every match runs as a single-threaded actor: one
// goroutine owns the Session and serializes its lifecycle events, so the
// state machine needs no locking. The engine only guards its own index.
type Engine struct {
	logger *logrus.Logger
	store  store.Store

	// TickInterval is how often each match's Loop runs. One tick per second
	// in production; tests shorten it.
	TickInterval time.Duration

	mu      sync.Mutex
	handles map[string]*handle
}

// handle is the engine-side record of one live match. conns is owned by the
// actor goroutine; label is immutable; size is an atomic snapshot of the
// presence count for listing.
type handle struct {
	sess  *Session
	label string

	inbox chan Message
	calls chan func()
	done  chan struct{}

	conns   map[string]*ClientConn
	size    int32
	stopped bool
}

func NewEngine(logger *logrus.Logger, st store.Store) *Engine {
	return &Engine{
		logger:       logger,
		store:        st,
		TickInterval: time.Second / TickRate,
		handles:      make(map[string]*handle),
	}
}

// CreateMatch allocates a match id, runs Init, and starts the actor. This is
// the single creation path for both registry rooms and matchmaker groups.
func (e *Engine) CreateMatch(ctx context.Context, params Params) (string, error) {
	id := uuid.NewString()
	sess, err := Init(ctx, e.logger, e.store, id, params)
	if err != nil {
		return "", err
	}

	h := &handle{
		sess:  sess,
		label: sess.LabelJSON,
		inbox: make(chan Message, 128),
		calls: make(chan func(), 16),
		done:  make(chan struct{}),
		conns: make(map[string]*ClientConn),
	}
	e.mu.Lock()
	e.handles[id] = h
	e.mu.Unlock()

	go e.run(h)
	e.logger.Infof("created match %s (room %q, max %d)", id, params.RoomName, params.MaxPlayers)
	return id, nil
}

// run is the actor loop: lifecycle calls and ticks for one match, strictly
// serialized. It exits on teardown (host leave, idle timeout, terminate) or a
// fatal store failure, which the engine treats as a crash of the match.
func (e *Engine) run(h *handle) {
	defer e.destroy(h)

	ticker := time.NewTicker(e.TickInterval)
	defer ticker.Stop()

	ctx := context.Background()
	var tick int64
	for {
		select {
		case fn := <-h.calls:
			fn()
			if h.stopped {
				return
			}
		case <-ticker.C:
			tick++
			alive, err := h.sess.Loop(ctx, tick, h, drainInbox(h.inbox))
			if err != nil {
				e.logger.Errorf("match %s loop failed: %v", h.sess.ID, err)
				return
			}
			if !alive {
				return
			}
		}
	}
}

// destroy removes the match from the index and severs its connections. No
// further events are delivered once this runs.
func (e *Engine) destroy(h *handle) {
	e.mu.Lock()
	delete(e.handles, h.sess.ID)
	e.mu.Unlock()

	for _, c := range h.conns {
		if c.Cancel != nil {
			c.Cancel()
		}
	}
	close(h.done)
	e.logger.Infof("match %s destroyed", h.sess.ID)
}

func (e *Engine) handleFor(matchID string) (*handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[matchID]
	return h, ok
}

// do posts fn into the match's actor and waits for it to run. It fails with
// ErrMatchNotFound when the actor has already exited.
func (e *Engine) do(h *handle, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case h.calls <- wrapped:
	case <-h.done:
		return ErrMatchNotFound
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		// The actor may have exited right after running fn (host-leave
		// teardown); only report not-found if fn never ran.
		select {
		case <-done:
			return nil
		default:
			return ErrMatchNotFound
		}
	}
}

// JoinAttempt runs the admission decision without joining.
func (e *Engine) JoinAttempt(matchID string, p models.Presence) (accept bool, rejectMessage string, err error) {
	h, ok := e.handleFor(matchID)
	if !ok {
		return false, "", ErrMatchNotFound
	}
	var attemptErr error
	callErr := e.do(h, func() {
		accept, rejectMessage, attemptErr = h.sess.JoinAttempt(p)
	})
	if callErr != nil {
		return false, "", callErr
	}
	return accept, rejectMessage, attemptErr
}

// Join runs admission and, when accepted, registers the connection and admits
// its presence — all inside one actor call, so two racing joiners cannot both
// squeeze past the capacity check.
func (e *Engine) Join(ctx context.Context, matchID string, conn *ClientConn) (accepted bool, rejectMessage string, err error) {
	h, ok := e.handleFor(matchID)
	if !ok {
		return false, "", ErrMatchNotFound
	}
	var joinErr error
	callErr := e.do(h, func() {
		accepted, rejectMessage, joinErr = h.sess.JoinAttempt(conn.Presence)
		if joinErr != nil || !accepted {
			return
		}
		h.conns[conn.Presence.ConnID] = conn
		if joinErr = h.sess.Join(ctx, []models.Presence{conn.Presence}); joinErr != nil {
			delete(h.conns, conn.Presence.ConnID)
			h.stopped = true
			return
		}
		atomic.StoreInt32(&h.size, int32(len(h.sess.Presences)))
	})
	if callErr != nil {
		return false, "", callErr
	}
	if joinErr != nil {
		e.logger.Errorf("match %s join failed: %v", matchID, joinErr)
		return false, "", joinErr
	}
	return accepted, rejectMessage, nil
}

// Leave removes the given connections from the match. A departing host tears
// the match down; the engine destroys it before any further tick.
func (e *Engine) Leave(ctx context.Context, matchID string, connIDs ...string) error {
	h, ok := e.handleFor(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	var leaveErr error
	callErr := e.do(h, func() {
		presences := make([]models.Presence, 0, len(connIDs))
		for _, id := range connIDs {
			p, present := h.sess.Presences[id]
			if !present {
				continue
			}
			presences = append(presences, p)
			if c, live := h.conns[id]; live {
				if c.Cancel != nil {
					c.Cancel()
				}
				delete(h.conns, id)
			}
		}
		if len(presences) == 0 {
			return
		}
		alive, err := h.sess.Leave(ctx, presences)
		if err != nil {
			leaveErr = err
			h.stopped = true
			return
		}
		if !alive {
			h.stopped = true
			return
		}
		atomic.StoreInt32(&h.size, int32(len(h.sess.Presences)))
	})
	if callErr != nil {
		return callErr
	}
	if leaveErr != nil {
		e.logger.Errorf("match %s leave failed: %v", matchID, leaveErr)
	}
	return leaveErr
}

// Deliver queues an inbound message for the match's next tick. A full inbox
// drops the message with a warning rather than blocking the transport.
func (e *Engine) Deliver(matchID string, msg Message) error {
	h, ok := e.handleFor(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrMatchNotFound
	default:
		e.logger.Warnf("match %s inbox full, dropping opcode %d from %q", matchID, msg.OpCode, msg.Sender.UserID)
		return nil
	}
}

// Signal sends an out-of-band payload to the match and returns its response.
func (e *Engine) Signal(matchID, data string) (string, error) {
	h, ok := e.handleFor(matchID)
	if !ok {
		return "", ErrMatchNotFound
	}
	var resp string
	if err := e.do(h, func() { resp = h.sess.Signal(data) }); err != nil {
		return "", err
	}
	return resp, nil
}

// Terminate notifies the match of shutdown and destroys it. Safe to call on a
// match that already tore itself down.
func (e *Engine) Terminate(matchID string, graceSeconds int) error {
	h, ok := e.handleFor(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	return e.do(h, func() {
		h.sess.Terminate(graceSeconds)
		h.stopped = true
	})
}

// ListMatches snapshots the live match index. The authoritative flag is
// accepted for interface parity and ignored: every match this engine hosts is
// server-authoritative. labelFilter is substring containment on the
// serialized label; zero min/max sizes mean unbounded.
func (e *Engine) ListMatches(limit int, authoritative bool, labelFilter string, minSize, maxSize int) []models.MatchListing {
	if limit <= 0 {
		limit = defaultListLimit
	}

	e.mu.Lock()
	handles := make([]*handle, 0, len(e.handles))
	for _, h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	out := []models.MatchListing{}
	for _, h := range handles {
		if len(out) >= limit {
			break
		}
		if labelFilter != "" && !strings.Contains(h.label, labelFilter) {
			continue
		}
		size := int(atomic.LoadInt32(&h.size))
		if minSize > 0 && size < minSize {
			continue
		}
		if maxSize > 0 && size > maxSize {
			continue
		}
		var label models.Label
		if err := json.Unmarshal([]byte(h.label), &label); err != nil {
			e.logger.Warnf("match %s has undecodable label, skipping in list", h.sess.ID)
			continue
		}
		out = append(out, models.MatchListing{MatchID: h.sess.ID, Size: size, Label: label})
	}
	return out
}

// BroadcastMessage implements Dispatcher over the match's live connections.
// Only invoked from the actor goroutine, which owns conns. The reliable flag
// is part of the dispatch contract; the websocket transport is already
// ordered and reliable.
func (h *handle) BroadcastMessage(opCode int64, data []byte, presences []models.Presence, sender models.Presence, reliable bool) {
	env := Envelope{OpCode: opCode, Data: data, Sender: sender.UserID}
	for _, p := range presences {
		if c, ok := h.conns[p.ConnID]; ok {
			c.Write(env)
		}
	}
}

func drainInbox(ch chan Message) []Message {
	var msgs []Message
	for {
		select {
		case m := <-ch:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}
