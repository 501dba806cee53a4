// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/registry"
	"github.com/jason-s-yu/lobbyd/internal/session"
)

// UserStore is the slice of the account database the handlers need. Nil when
// the service runs without one; websocket joins then fall back to synthesized
// guest usernames.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
}

// Server bundles the dependencies of the HTTP and websocket handlers.
type Server struct {
	Logger   *logrus.Logger
	Registry *registry.Service
	Engine   *session.Engine
	Users    UserStore
}

func NewServer(logger *logrus.Logger, reg *registry.Service, engine *session.Engine, users UserStore) *Server {
	return &Server{Logger: logger, Registry: reg, Engine: engine, Users: users}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to do but note it.
		logrus.Warnf("failed to encode response: %v", err)
	}
}
