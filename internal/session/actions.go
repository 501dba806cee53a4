// internal/session/actions.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Opcodes identify inbound message kinds. The set is closed: every opcode is
// dispatched through the switch in dispatch, and anything unrecognized falls
// through to the relay-only default.
const (
	OpTurnEnded           int64 = 0
	OpAbilityUsed         int64 = 1
	OpPlayerNumberChanged int64 = 2
	OpPlayerReadyChanged  int64 = 3
)

// Message is one inbound client message delivered to the match for a tick.
type Message struct {
	OpCode int64
	Data   []byte
	Sender models.Presence
}

// Dispatcher delivers a payload to a set of presences. The engine implements
// it over live connections; tests substitute a recorder.
type Dispatcher interface {
	BroadcastMessage(opCode int64, data []byte, presences []models.Presence, sender models.Presence, reliable bool)
}

// dispatch routes one message. Every opcode relays the raw payload to all
// presences except the sender first; the two stateful opcodes then
// read-modify-write the sender's property entry. A store failure is fatal to
// the invocation, a malformed payload is logged and skipped.
func (s *Session) dispatch(ctx context.Context, d Dispatcher, msg Message) error {
	s.relay(d, msg)

	switch msg.OpCode {
	case OpPlayerReadyChanged:
		var params struct {
			IsReady bool `json:"is_ready"`
		}
		if err := json.Unmarshal(msg.Data, &params); err != nil {
			s.logger.Warnf("match %s: bad PlayerReadyChanged payload from %q: %v", s.ID, msg.Sender.UserID, err)
			return nil
		}
		return s.updateSenderProperty(ctx, msg.Sender.UserID, func(p *models.UserProperty) {
			p.IsReady = params.IsReady
		})

	case OpPlayerNumberChanged:
		var params struct {
			PlayerNumber int `json:"player_number"`
		}
		if err := json.Unmarshal(msg.Data, &params); err != nil {
			s.logger.Warnf("match %s: bad PlayerNumberChanged payload from %q: %v", s.ID, msg.Sender.UserID, err)
			return nil
		}
		return s.updateSenderProperty(ctx, msg.Sender.UserID, func(p *models.UserProperty) {
			n := params.PlayerNumber
			p.PlayerNumber = &n
		})

	case OpTurnEnded, OpAbilityUsed:
		// Relay only.
		return nil

	default:
		// Unknown opcodes relay only, same as TurnEnded/AbilityUsed.
		return nil
	}
}

// relay broadcasts the raw message to every current presence except the
// sender, marked reliable.
func (s *Session) relay(d Dispatcher, msg Message) {
	targets := make([]models.Presence, 0, len(s.Presences))
	for _, p := range s.Presences {
		if p.ConnID == msg.Sender.ConnID {
			continue
		}
		targets = append(targets, p)
	}
	d.BroadcastMessage(msg.OpCode, msg.Data, targets, msg.Sender, true)
}

// updateSenderProperty performs the whole-map read-modify-write of the match
// property record for one user. The entry is (re)created if absent so the
// updated value always persists.
func (s *Session) updateSenderProperty(ctx context.Context, userID string, apply func(*models.UserProperty)) error {
	props, ok, err := s.store.Properties(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("failed to read properties for match %s: %w", s.ID, err)
	}
	if !ok {
		props = map[string]models.UserProperty{}
	}

	entry := props[userID]
	apply(&entry)
	props[userID] = entry

	if err := s.store.WriteProperties(ctx, s.ID, props); err != nil {
		return fmt.Errorf("failed to write properties for match %s: %w", s.ID, err)
	}
	return nil
}
