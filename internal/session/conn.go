// internal/session/conn.go
package session

import (
	"encoding/json"
	"log"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Envelope is one outbound frame pushed to a client connection.
type Envelope struct {
	OpCode int64           `json:"op"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sender string          `json:"sender,omitempty"`
}

// ClientConn is a single presence's transport handle. The websocket write pump
// drains OutChan; Cancel stops the connection's goroutines.
type ClientConn struct {
	Presence models.Presence
	OutChan  chan Envelope
	Cancel   func()
}

// Write pushes a frame onto the connection's OutChan non-blockingly. A full
// or closed channel drops the frame with a warning.
func (c *ClientConn) Write(env Envelope) {
	select {
	case c.OutChan <- env:
	default:
		log.Printf("ClientConn Write WARNING: OutChan for user %s closed or full. Dropped opcode %d.", c.Presence.UserID, env.OpCode)
	}
}
