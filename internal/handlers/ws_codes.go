// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the match transport. These give
// clients more specific reasons than the standard set.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidMatchIDError = 3001 // Match id in the WS URL is malformed or unknown.
	JoinRejectedError   = 3002 // Admission control rejected the join attempt.
)
