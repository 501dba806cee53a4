// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Redis is the production Store backed by a go-redis client. The client is
// injected so tests and tools can point it anywhere.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-connected client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// ConnectRedis builds and pings a client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func key(collection, k string) string {
	return collection + ":" + k
}

func (s *Redis) read(ctx context.Context, k string, out interface{}) (bool, error) {
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", k, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", k, err)
	}
	return true, nil
}

func (s *Redis) write(ctx context.Context, k string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", k, err)
	}
	if err := s.rdb.Set(ctx, k, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", k, err)
	}
	return nil
}

func (s *Redis) RoomMatch(ctx context.Context, roomName string) (string, bool, error) {
	var rec roomRecord
	ok, err := s.read(ctx, key(collectionRoomNameToMatchID, roomName), &rec)
	return rec.MatchID, ok, err
}

func (s *Redis) MatchRoom(ctx context.Context, matchID string) (string, bool, error) {
	var rec matchRecord
	ok, err := s.read(ctx, key(collectionMatchIDToRoomName, matchID), &rec)
	return rec.RoomName, ok, err
}

func (s *Redis) WriteRegistry(ctx context.Context, roomName, matchID string) error {
	if err := s.write(ctx, key(collectionRoomNameToMatchID, roomName), roomRecord{MatchID: matchID}); err != nil {
		return err
	}
	return s.write(ctx, key(collectionMatchIDToRoomName, matchID), matchRecord{RoomName: roomName})
}

func (s *Redis) DeleteRegistry(ctx context.Context, roomName, matchID string) error {
	if err := s.rdb.Del(ctx, key(collectionRoomNameToMatchID, roomName)).Err(); err != nil {
		return fmt.Errorf("failed to delete room record %q: %w", roomName, err)
	}
	if err := s.rdb.Del(ctx, key(collectionMatchIDToRoomName, matchID)).Err(); err != nil {
		return fmt.Errorf("failed to delete match record %q: %w", matchID, err)
	}
	return nil
}

func (s *Redis) Properties(ctx context.Context, matchID string) (map[string]models.UserProperty, bool, error) {
	props := map[string]models.UserProperty{}
	ok, err := s.read(ctx, key(collectionMatchUserProperties, matchID), &props)
	return props, ok, err
}

func (s *Redis) WriteProperties(ctx context.Context, matchID string, props map[string]models.UserProperty) error {
	return s.write(ctx, key(collectionMatchUserProperties, matchID), props)
}

func (s *Redis) DeleteProperties(ctx context.Context, matchID string) error {
	if err := s.rdb.Del(ctx, key(collectionMatchUserProperties, matchID)).Err(); err != nil {
		return fmt.Errorf("failed to delete properties %q: %w", matchID, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
