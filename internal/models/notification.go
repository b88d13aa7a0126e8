package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-game notification row shown in a player's feed, as
// opposed to the transient live-channel pushes and off-line messages.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	PlayerID  uuid.UUID `json:"player_id"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
