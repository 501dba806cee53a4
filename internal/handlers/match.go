// internal/handlers/match.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/lobbyd/internal/registry"
)

// Error codes for the match RPCs. Each endpoint numbers its own codes, so the
// same condition can carry a different code per route.
const (
	createCodeInvalidInput        = 0
	createCodeRoomExists          = 1
	createCodeMatchCreationFailed = 2
	createCodeInternalServerError = 3

	findCodeInvalidInput        = 0
	findCodeRoomNotFound        = 1
	findCodeInternalServerError = 2
)

type rpcError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Match RPCs always answer JSON with HTTP 200; failures ride the envelope's
// error/code fields, which is what the game clients parse. Authentication
// failures are the exception and use plain HTTP statuses.

// CreateMatchHandler handles POST /match/create:
//
//	{"roomName": string, "maxPlayers": number, "isPrivate": bool}
//
// and returns {"matchId": string} or an error envelope.
func CreateMatchHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		var req struct {
			RoomName   string `json:"roomName"`
			MaxPlayers int    `json:"maxPlayers"`
			IsPrivate  bool   `json:"isPrivate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, rpcError{Error: "Invalid room name", Code: createCodeInvalidInput})
			return
		}

		matchID, err := s.Registry.Create(r.Context(), userID.String(), req.RoomName, req.MaxPlayers, req.IsPrivate)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"matchId": matchID})
		case errors.Is(err, registry.ErrInvalidRoomName):
			writeJSON(w, http.StatusOK, rpcError{Error: "Invalid room name", Code: createCodeInvalidInput})
		case errors.Is(err, registry.ErrRoomExists):
			writeJSON(w, http.StatusOK, rpcError{Error: "Room already exists", Code: createCodeRoomExists})
		case errors.Is(err, registry.ErrMatchCreationFailed):
			writeJSON(w, http.StatusOK, rpcError{Error: "Match creation failed", Code: createCodeMatchCreationFailed})
		default:
			s.Logger.Errorf("failed to create custom match: %v", err)
			writeJSON(w, http.StatusOK, rpcError{Error: "Internal Server Error", Code: createCodeInternalServerError})
		}
	}
}

// FindMatchHandler handles POST /match/find: {"roomName": string} and returns
// {"matchId": string} or an error envelope.
func FindMatchHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		var req struct {
			RoomName string `json:"roomName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, rpcError{Error: "Invalid room name", Code: findCodeInvalidInput})
			return
		}

		matchID, err := s.Registry.Find(r.Context(), req.RoomName)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"matchId": matchID})
		case errors.Is(err, registry.ErrInvalidRoomName):
			writeJSON(w, http.StatusOK, rpcError{Error: "Invalid room name", Code: findCodeInvalidInput})
		case errors.Is(err, registry.ErrRoomNotFound):
			writeJSON(w, http.StatusOK, rpcError{Error: "Room not found", Code: findCodeRoomNotFound})
		default:
			s.Logger.Errorf("failed to find custom match: %v", err)
			writeJSON(w, http.StatusOK, rpcError{Error: "Internal Server Error", Code: findCodeInternalServerError})
		}
	}
}

// ListMatchesHandler handles POST /match/list:
//
//	{"limit": number, "authoritative": bool, "label": string,
//	 "minSize": number, "maxSize": number}
//
// and returns the public (non-private) match listings.
func ListMatchesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		var req struct {
			Limit         int    `json:"limit"`
			Authoritative bool   `json:"authoritative"`
			Label         string `json:"label"`
			MinSize       int    `json:"minSize"`
			MaxSize       int    `json:"maxSize"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		listings, err := s.Registry.List(r.Context(), req.Limit, req.Authoritative, req.Label, req.MinSize, req.MaxSize)
		if err != nil {
			s.Logger.Errorf("failed to list matches: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			return
		}
		writeJSON(w, http.StatusOK, listings)
	}
}

// GetUserPropertiesHandler handles POST /match/properties:
//
//	{"matchId": string, "userId": string}
//
// and returns the user's property object.
func GetUserPropertiesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		var req struct {
			MatchID string `json:"matchId"`
			UserID  string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		prop, err := s.Registry.GetUserProperties(r.Context(), req.MatchID, req.UserID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, prop)
		case errors.Is(err, registry.ErrPropertiesNotFound), errors.Is(err, registry.ErrUserPropertiesNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			s.Logger.Errorf("failed to get user properties: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		}
	}
}
