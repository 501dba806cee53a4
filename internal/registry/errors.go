// internal/registry/errors.go
package registry

import "errors"

// Sentinel errors for the registry protocol. RPC handlers map these onto the
// numeric error codes of each endpoint; anything else is internal.
var (
	ErrInvalidRoomName        = errors.New("invalid room name")
	ErrRoomExists             = errors.New("room already exists")
	ErrRoomNotFound           = errors.New("room not found")
	ErrMatchCreationFailed    = errors.New("match creation failed")
	ErrPropertiesNotFound     = errors.New("match has no property record")
	ErrUserPropertiesNotFound = errors.New("user has no property entry")
)
