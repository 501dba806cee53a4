// internal/registry/registry.go
//
// Package registry implements the room-name registry protocol: creating,
// finding and listing matches, and projecting per-user properties. It owns no
// state of its own; the property store and the live match index arrive
// injected.
package registry

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/session"
	"github.com/jason-s-yu/lobbyd/internal/store"
)

// Index is the slice of the engine the registry needs: session creation and
// enumeration of the live match index.
type Index interface {
	CreateMatch(ctx context.Context, params session.Params) (string, error)
	ListMatches(limit int, authoritative bool, labelFilter string, minSize, maxSize int) []models.MatchListing
}

type Service struct {
	logger *logrus.Logger
	store  store.Store
	index  Index
}

func NewService(logger *logrus.Logger, st store.Store, index Index) *Service {
	return &Service{logger: logger, store: st, index: index}
}

// Create registers a new named room: rejects an empty name, rejects a name
// that already resolves to a match, then creates the session and writes both
// registry directions. The existence pre-check and the registry writes are
// not one transaction; the create-then-register order is the observable
// contract.
func (s *Service) Create(ctx context.Context, callerUserID, roomName string, maxPlayers int, isPrivate bool) (string, error) {
	if roomName == "" {
		return "", ErrInvalidRoomName
	}

	if _, exists, err := s.store.RoomMatch(ctx, roomName); err != nil {
		return "", fmt.Errorf("failed to check room %q: %w", roomName, err)
	} else if exists {
		return "", ErrRoomExists
	}

	matchID, err := s.index.CreateMatch(ctx, session.Params{
		RoomName:   roomName,
		MaxPlayers: maxPlayers,
		IsPrivate:  isPrivate,
		Host:       callerUserID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMatchCreationFailed, err)
	}

	if err := s.store.WriteRegistry(ctx, roomName, matchID); err != nil {
		return "", fmt.Errorf("failed to register room %q: %w", roomName, err)
	}

	s.logger.Infof("room %q registered as match %s by %s", roomName, matchID, callerUserID)
	return matchID, nil
}

// Find resolves a room name to its match id. Pure lookup, no mutation.
func (s *Service) Find(ctx context.Context, roomName string) (string, error) {
	if roomName == "" {
		return "", ErrInvalidRoomName
	}
	matchID, ok, err := s.store.RoomMatch(ctx, roomName)
	if err != nil {
		return "", fmt.Errorf("failed to look up room %q: %w", roomName, err)
	}
	if !ok {
		return "", ErrRoomNotFound
	}
	return matchID, nil
}

// List enumerates the live match index and drops every match whose label
// marks it private. Ordering is whatever the index returns and must not be
// assumed stable.
func (s *Service) List(ctx context.Context, limit int, authoritative bool, labelFilter string, minSize, maxSize int) ([]models.MatchListing, error) {
	all := s.index.ListMatches(limit, authoritative, labelFilter, minSize, maxSize)
	public := make([]models.MatchListing, 0, len(all))
	for _, m := range all {
		if m.Label.IsPrivate {
			continue
		}
		public = append(public, m)
	}
	return public, nil
}

// GetUserProperties projects one user's entry out of a match's property
// record. A missing record or entry is a typed not-found rather than a fault.
func (s *Service) GetUserProperties(ctx context.Context, matchID, userID string) (models.UserProperty, error) {
	props, ok, err := s.store.Properties(ctx, matchID)
	if err != nil {
		return models.UserProperty{}, fmt.Errorf("failed to read properties for match %s: %w", matchID, err)
	}
	if !ok {
		return models.UserProperty{}, ErrPropertiesNotFound
	}
	prop, ok := props[userID]
	if !ok {
		return models.UserProperty{}, ErrUserPropertiesNotFound
	}
	return prop, nil
}
