// internal/matchmaker/matchmaker.go
//
// Package matchmaker turns a completed matchmaking group into a live match.
// This is the second, explicit creation path: quickmatch rooms are private
// and never enter the room-name registry, so they are not discoverable by
// name.
package matchmaker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/session"
)

// QuickMatchRoomName is the synthetic room name for matchmaker-created
// sessions. It is never written to the registry.
const QuickMatchRoomName = "quickmatch"

// Entry is one matched player: their presence and the properties they
// declared when queueing.
type Entry struct {
	Presence   models.Presence
	Properties map[string]interface{}
}

// Creator is the slice of the engine the matchmaker needs.
type Creator interface {
	CreateMatch(ctx context.Context, params session.Params) (string, error)
}

// ErrEmptyGroup is returned when a completion fires with no entries.
var ErrEmptyGroup = errors.New("matchmaker completed with empty group")

// Completed handles one finished matchmaking group. maxPlayers and host come
// from the first entry; any creation failure propagates to the caller, no
// retry.
func Completed(ctx context.Context, logger *logrus.Logger, creator Creator, entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyGroup
	}

	for _, e := range entries {
		logger.Infof("matched user %q named %q", e.Presence.UserID, e.Presence.Username)
		for key, value := range e.Properties {
			logger.Infof("matched on %q value %v", key, value)
		}
	}

	maxPlayers := intProperty(entries[0].Properties, "maxPlayers", len(entries))
	host := entries[0].Presence.UserID

	matchID, err := creator.CreateMatch(ctx, session.Params{
		RoomName:   QuickMatchRoomName,
		MaxPlayers: maxPlayers,
		IsPrivate:  true,
		Host:       host,
	})
	if err != nil {
		logger.Errorf("matchmaking error: %v", err)
		return "", err
	}
	return matchID, nil
}

// intProperty reads a numeric property that may arrive as int or, after JSON
// decoding, float64.
func intProperty(props map[string]interface{}, key string, def int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
