// internal/store/store.go
//
// Package store holds the typed key-value records the lobby service shares
// across matches: the bidirectional room-name <-> match-id registry and the
// per-match user property maps. Everything that needs it takes a Store
// explicitly; there is no package-level client.
package store

import (
	"context"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Collection prefixes for the three logical record sets. The names mirror the
// wire-visible schema so operators can grep the backing store directly.
const (
	collectionRoomNameToMatchID   = "RoomNameToMatchId"
	collectionMatchIDToRoomName   = "MatchIdToRoomName"
	collectionMatchUserProperties = "matchUserProperties"
)

// roomRecord is the stored value of a RoomNameToMatchId entry.
type roomRecord struct {
	MatchID string `json:"matchId"`
}

// matchRecord is the stored value of a MatchIdToRoomName entry.
type matchRecord struct {
	RoomName string `json:"roomName"`
}

// Store is the property-store boundary. All calls block until the backend
// answers; a failed call surfaces as an error to the invoking lifecycle step.
type Store interface {
	// RoomMatch resolves a room name to its match id. ok is false when no
	// record exists.
	RoomMatch(ctx context.Context, roomName string) (matchID string, ok bool, err error)

	// MatchRoom resolves a match id to its registered room name.
	MatchRoom(ctx context.Context, matchID string) (roomName string, ok bool, err error)

	// WriteRegistry creates both directions of the room index. The writes are
	// issued sequentially, room->match first; they are not atomic, and callers
	// must not assume they are.
	WriteRegistry(ctx context.Context, roomName, matchID string) error

	// DeleteRegistry removes both directions of the room index, in the same
	// order the writes were issued. Deleting absent records is not an error.
	DeleteRegistry(ctx context.Context, roomName, matchID string) error

	// Properties reads the whole per-match user property map.
	Properties(ctx context.Context, matchID string) (props map[string]models.UserProperty, ok bool, err error)

	// WriteProperties replaces the whole per-match user property map. Callers
	// read-modify-write the full record; there is no partial-key update.
	WriteProperties(ctx context.Context, matchID string, props map[string]models.UserProperty) error

	// DeleteProperties removes the per-match user property map.
	DeleteProperties(ctx context.Context, matchID string) error
}
