// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/session"
)

// MatchWSHandler is the presence transport: one websocket per presence on
// /match/ws/{matchId}. The read pump feeds the match's inbox; the write pump
// drains the broadcast out-channel.
func MatchWSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		matchID := strings.Split(strings.TrimPrefix(r.URL.Path, "/match/ws/"), "/")[0]
		if matchID == "" {
			http.Error(w, "missing match id", http.StatusBadRequest)
			return
		}

		// Authenticate before the upgrade so a guest cookie can still be set.
		userID, err := s.ensureUser(w, r)
		if err != nil {
			s.Logger.Warnf("user authentication failed for match %s: %v", matchID, err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		presence := models.Presence{
			UserID:   userID.String(),
			ConnID:   uuid.NewString(),
			Username: s.lookupUsername(r.Context(), userID),
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &session.ClientConn{
			Presence: presence,
			OutChan:  make(chan session.Envelope, 16),
			Cancel:   cancel,
		}

		accepted, rejectMessage, err := s.Engine.Join(ctx, matchID, conn)
		if err != nil {
			if errors.Is(err, session.ErrMatchNotFound) {
				c.Close(InvalidMatchIDError, "match does not exist")
			} else {
				c.Close(websocket.StatusInternalError, "join failed")
			}
			return
		}
		if !accepted {
			c.Close(JoinRejectedError, rejectMessage)
			return
		}

		s.Logger.Infof("user %v (%s) joined match %s as %s", userID, remoteAddr, matchID, presence.ConnID)

		go writePump(ctx, c, conn, s.Logger)
		readPump(ctx, c, s, matchID, presence)

		// Read pump exited: the presence leaves. The engine may already have
		// torn the match down, which is fine.
		if err := s.Engine.Leave(context.Background(), matchID, presence.ConnID); err != nil && !errors.Is(err, session.ErrMatchNotFound) {
			s.Logger.Warnf("leave failed for user %v in match %s: %v", userID, matchID, err)
		}
		s.Logger.Infof("user %v disconnected from match %s", userID, matchID)
	}
}

// lookupUsername fetches the account username with a short timeout, falling
// back to a synthesized guest name.
func (s *Server) lookupUsername(ctx context.Context, userID uuid.UUID) string {
	fallback := fmt.Sprintf("User_%s", userID.String()[:4])
	if s.Users == nil {
		return fallback
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	user, err := s.Users.GetUserByID(lookupCtx, userID)
	if err != nil {
		s.Logger.Warnf("error fetching user %s details: %v; using fallback username", userID, err)
		return fallback
	}
	return user.Username
}

// inboundFrame is one client -> match message.
type inboundFrame struct {
	Op   int64           `json:"op"`
	Data json.RawMessage `json:"data"`
}

// readPump delivers client frames into the match inbox until the connection
// closes or the match disappears.
func readPump(ctx context.Context, c *websocket.Conn, s *Server, matchID string, presence models.Presence) {
	for {
		typ, raw, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				s.Logger.Warnf("match %s: read error for user %v: %v", matchID, presence.UserID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.Logger.Warnf("match %s: ignoring non-text message from user %v", matchID, presence.UserID)
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.Logger.Warnf("match %s: invalid json from user %v: %v", matchID, presence.UserID, err)
			continue
		}

		msg := session.Message{OpCode: frame.Op, Data: frame.Data, Sender: presence}
		if err := s.Engine.Deliver(matchID, msg); err != nil {
			// Match is gone; the connection is about to be cancelled.
			return
		}
	}
}

// writePump drains the out-channel to the websocket and pings periodically.
func writePump(ctx context.Context, c *websocket.Conn, conn *session.ClientConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				logger.Warnf("failed to marshal outgoing frame for user %v: %v", conn.Presence.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for user %v: %v", conn.Presence.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping user %v: %v; assuming disconnect", conn.Presence.UserID, err)
				return
			}
		}
	}
}
