// internal/session/session.go
//
// Package session holds the per-match lobby state machine and the engine that
// hosts it. A Session is only ever touched from its own actor goroutine, so
// the state machine itself carries no locking.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/store"
)

const (
	// TickRate is fixed: the engine invokes Loop once per second.
	TickRate = 1

	// maxEmptyTicks is the idle threshold. The tick that pushes the counter
	// past this value tears the match down.
	maxEmptyTicks = 100
)

// RejectRoomFull is the admission-control reject message sent to clients.
const RejectRoomFull = "The room is full"

// Params carries the creation parameters for a match.
type Params struct {
	RoomName   string
	MaxPlayers int
	IsPrivate  bool
	Host       string
}

// Session is one live lobby match. Presences is keyed by connection id.
// EmptyTicks counts consecutive ticks observed with zero presences; it is only
// ever incremented, never reset.
type Session struct {
	ID        string
	RoomName  string
	LabelJSON string

	Presences  map[string]models.Presence
	EmptyTicks int

	store  store.Store
	logger *logrus.Logger
}

// Init creates the run-state for a new match: empty presence map, a freshly
// drawn seed baked into the serialized label, and an empty property record
// written under the match id.
func Init(ctx context.Context, logger *logrus.Logger, st store.Store, id string, params Params) (*Session, error) {
	if err := st.WriteProperties(ctx, id, map[string]models.UserProperty{}); err != nil {
		return nil, fmt.Errorf("failed to write initial property record: %w", err)
	}

	seed := rand.Int63n(1<<32) - 1<<31
	label := models.Label{
		RoomName:   params.RoomName,
		MaxPlayers: params.MaxPlayers,
		IsPrivate:  params.IsPrivate,
		Seed:       seed,
		Host:       params.Host,
	}
	raw, err := json.Marshal(label)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal label: %w", err)
	}

	return &Session{
		ID:        id,
		RoomName:  params.RoomName,
		LabelJSON: string(raw),
		Presences: make(map[string]models.Presence),
		store:     st,
		logger:    logger,
	}, nil
}

// label decodes the current serialized label.
func (s *Session) label() (models.Label, error) {
	var l models.Label
	if err := json.Unmarshal([]byte(s.LabelJSON), &l); err != nil {
		return models.Label{}, fmt.Errorf("failed to decode match label: %w", err)
	}
	return l, nil
}

// JoinAttempt is the admission decision for one candidate presence. It decodes
// maxPlayers from the current label and mutates nothing.
func (s *Session) JoinAttempt(p models.Presence) (accept bool, rejectMessage string, err error) {
	s.logger.Debugf("user %q attempted to join lobby match %s", p.UserID, s.ID)
	label, err := s.label()
	if err != nil {
		return false, "", err
	}
	if len(s.Presences) >= label.MaxPlayers {
		return false, RejectRoomFull, nil
	}
	return true, "", nil
}

// Join admits presences: inserts each into the presence map keyed by
// connection id and ensures a property entry exists for the user (not ready,
// no player number). All joiners are persisted in a single write.
func (s *Session) Join(ctx context.Context, presences []models.Presence) error {
	props, ok, err := s.store.Properties(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("failed to read properties for match %s: %w", s.ID, err)
	}
	if !ok {
		props = map[string]models.UserProperty{}
	}

	for _, p := range presences {
		s.Presences[p.ConnID] = p
		if _, exists := props[p.UserID]; !exists {
			props[p.UserID] = models.UserProperty{}
		}
	}

	if err := s.store.WriteProperties(ctx, s.ID, props); err != nil {
		return fmt.Errorf("failed to write properties for match %s: %w", s.ID, err)
	}
	return nil
}

// Leave removes the given presences by connection id. If any of them belongs
// to the host, the match is torn down and alive is false; the engine must
// destroy the session immediately and deliver no further events.
func (s *Session) Leave(ctx context.Context, presences []models.Presence) (alive bool, err error) {
	label, err := s.label()
	if err != nil {
		return false, err
	}

	hostLeaving := false
	for _, p := range presences {
		if p.UserID == label.Host {
			hostLeaving = true
		}
		delete(s.Presences, p.ConnID)
	}

	if hostLeaving {
		if err := s.clearMatchData(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Loop runs once per tick. The empty-tick counter increments only on ticks
// where the presence map is empty; once it exceeds the threshold the match is
// torn down exactly like a host departure. Otherwise every inbound message is
// dispatched in arrival order.
func (s *Session) Loop(ctx context.Context, tick int64, d Dispatcher, messages []Message) (alive bool, err error) {
	if len(s.Presences) == 0 {
		s.EmptyTicks++
	}

	if s.EmptyTicks > maxEmptyTicks {
		s.logger.Infof("match %s idle for %d ticks, tearing down", s.ID, s.EmptyTicks)
		if err := s.clearMatchData(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	for _, msg := range messages {
		if err := s.dispatch(ctx, d, msg); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Signal is the out-of-band request/response channel. It mutates nothing and
// echoes an acknowledgement back to the caller.
func (s *Session) Signal(data string) string {
	s.logger.Debugf("lobby match %s signal received: %s", s.ID, data)
	return "lobby match signal received: " + data
}

// Terminate is the shutdown notification from the engine. Teardown is handled
// by Leave/Loop; Terminate must tolerate running after (or without) either.
func (s *Session) Terminate(graceSeconds int) {
	s.logger.Debugf("lobby match %s terminated (grace %ds)", s.ID, graceSeconds)
}

// clearMatchData removes both registry records and the property record for
// this match. Matchmaker-created rooms were never registered; deleting their
// absent registry records is a no-op.
func (s *Session) clearMatchData(ctx context.Context) error {
	if err := s.store.DeleteRegistry(ctx, s.RoomName, s.ID); err != nil {
		return fmt.Errorf("failed to clear registry for match %s: %w", s.ID, err)
	}
	if err := s.store.DeleteProperties(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to clear properties for match %s: %w", s.ID, err)
	}
	return nil
}
