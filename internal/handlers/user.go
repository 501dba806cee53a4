// internal/handlers/user.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// ensureUser resolves the websocket caller to a user id. A valid auth_token
// cookie wins; otherwise, when an account database is wired, an ephemeral
// guest is created and its token set on the response.
func (s *Server) ensureUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookie := r.Header.Get("Cookie")
	if strings.Contains(cookie, "auth_token=") {
		userIDStr, err := auth.AuthenticateJWT(extractCookieToken(cookie, "auth_token"))
		if err == nil {
			return uuid.Parse(userIDStr)
		}
		// Fall through to guest creation on a stale token.
	}

	if s.Users == nil {
		return uuid.Nil, errors.New("missing or invalid auth_token")
	}

	guest := models.User{Username: "Guest", IsEphemeral: true}
	if err := s.Users.CreateUser(context.Background(), &guest); err != nil {
		return uuid.Nil, err
	}
	token, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return guest.ID, nil
}

// CreateUserHandler handles POST /user/create.
func CreateUserHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Users == nil {
			http.Error(w, "account database not configured", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		user := models.User{
			Email:    req.Email,
			Password: req.Password,
			Username: req.Username,
		}
		if err := s.Users.CreateUser(r.Context(), &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			s.Logger.Errorf("failed to create user: %v", err)
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		user.Password = ""
		writeJSON(w, http.StatusCreated, user)
	}
}

// LoginHandler handles POST /user/login: {"email", "password"} and returns
// {"token"} plus the auth_token cookie.
func LoginHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Users == nil {
			http.Error(w, "account database not configured", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			s.Logger.Warnf("failed to authenticate user: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenExpireSec,
		})
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
