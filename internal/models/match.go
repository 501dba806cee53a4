// internal/models/match.go
package models

// Presence is one connected participant inside a match: the account identity
// plus the per-connection id the transport assigned for this session.
type Presence struct {
	UserID   string `json:"userId"`
	ConnID   string `json:"connId"`
	Username string `json:"username"`
}

// UserProperty is the per-user lobby state persisted in the property store.
// PlayerNumber stays nil until the player explicitly picks a seat.
type UserProperty struct {
	IsReady      bool `json:"isReady"`
	PlayerNumber *int `json:"playerNumber,omitempty"`
}

// Label is the public descriptor attached to a match at creation and surfaced
// by listing. It is never mutated after init.
type Label struct {
	RoomName   string `json:"roomName"`
	MaxPlayers int    `json:"maxPlayers"`
	IsPrivate  bool   `json:"isPrivate"`
	Seed       int64  `json:"seed"`
	Host       string `json:"host"`
}

// MatchListing is one entry returned by the match listing API.
type MatchListing struct {
	MatchID string `json:"matchId"`
	Size    int    `json:"size"`
	Label   Label  `json:"label"`
}
