package models

import (
	"time"

	"github.com/google/uuid"
)

// Player represents one member of a game. A player's lifecycle is independent
// of the game's but constrained by it: once LeftGame or Eliminated is set the
// player can no longer act, and neither flag ever clears.
type Player struct {
	ID     uuid.UUID `json:"id"`
	GameID uuid.UUID `json:"game_id"`

	Nickname string `json:"nickname"`

	// Contact is the opaque address off-line messages go to (email or phone).
	Contact string `json:"contact"`

	IsHost           bool   `json:"is_host"`
	Verified         bool   `json:"verified"`
	VerificationCode string `json:"-"`

	// ConnectionID is the live-channel handle while the player has the app
	// open. Empty means disconnected; presence of a handle IS the connected
	// flag.
	ConnectionID string `json:"-"`

	Ammo int `json:"ammo"`

	// Elimination-mode only.
	Eliminated    bool       `json:"eliminated"`
	DisabledUntil *time.Time `json:"disabled_until,omitempty"`

	LeftGame  bool      `json:"left_game"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Connected reports whether the player currently holds a live-channel handle.
func (p *Player) Connected() bool {
	return p.ConnectionID != ""
}

// InGame reports whether the player is still a participating member: joined,
// verified, and not departed or purged.
func (p *Player) InGame() bool {
	return p.Verified && !p.LeftGame && !p.Deleted
}

// CanAct reports whether the player may take game actions (vote, upload,
// use ammo) right now.
func (p *Player) CanAct() bool {
	return p.InGame() && !p.Eliminated
}

// DisabledAt reports whether the player is serving an out-of-zone penalty at
// the given instant.
func (p *Player) DisabledAt(now time.Time) bool {
	return p.DisabledUntil != nil && now.Before(*p.DisabledUntil)
}
