package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jason-s-yu/lobbyd/internal/auth"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authenticateRequest resolves the caller's user id from the auth_token
// cookie.
func authenticateRequest(r *http.Request) (uuid.UUID, error) {
	cookie := r.Header.Get("Cookie")
	if !strings.Contains(cookie, "auth_token=") {
		return uuid.Nil, fmt.Errorf("missing auth_token")
	}
	userIDStr, err := auth.AuthenticateJWT(extractCookieToken(cookie, "auth_token"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token: %w", err)
	}
	return userID, nil
}
