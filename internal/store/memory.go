// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Memory is a mutex-guarded in-process Store. It backs single-node dev
// deployments (STORE_BACKEND=memory) and every package's tests.
type Memory struct {
	mu         sync.Mutex
	rooms      map[string]string // roomName -> matchID
	matches    map[string]string // matchID -> roomName
	properties map[string]map[string]models.UserProperty
}

func NewMemory() *Memory {
	return &Memory{
		rooms:      make(map[string]string),
		matches:    make(map[string]string),
		properties: make(map[string]map[string]models.UserProperty),
	}
}

func (s *Memory) RoomMatch(_ context.Context, roomName string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.rooms[roomName]
	return id, ok, nil
}

func (s *Memory) MatchRoom(_ context.Context, matchID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.matches[matchID]
	return name, ok, nil
}

func (s *Memory) WriteRegistry(_ context.Context, roomName, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomName] = matchID
	s.matches[matchID] = roomName
	return nil
}

func (s *Memory) DeleteRegistry(_ context.Context, roomName, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomName)
	delete(s.matches, matchID)
	return nil
}

func (s *Memory) Properties(_ context.Context, matchID string) (map[string]models.UserProperty, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.properties[matchID]
	if !ok {
		return map[string]models.UserProperty{}, false, nil
	}
	props := make(map[string]models.UserProperty, len(stored))
	for k, v := range stored {
		props[k] = v
	}
	return props, true, nil
}

func (s *Memory) WriteProperties(_ context.Context, matchID string, props map[string]models.UserProperty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make(map[string]models.UserProperty, len(props))
	for k, v := range props {
		stored[k] = v
	}
	s.properties[matchID] = stored
	return nil
}

func (s *Memory) DeleteProperties(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.properties, matchID)
	return nil
}
