package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the game core. The notification layer keys its
// fan-out rules off these values, and they double as the NATS subject suffix.
const (
	TypeGameStarting    = "game_starting"
	TypeGameNowPlaying  = "game_now_playing"
	TypeGameCompleted   = "game_completed"
	TypeLobbyEnded      = "lobby_ended"
	TypePlayerJoined    = "player_joined"
	TypePlayerLeft      = "player_left"
	TypePhotoUploaded   = "photo_uploaded"
	TypePhotoResolved   = "photo_resolved"
	TypeAmmoReplenished = "ammo_replenished"
	TypePlayerDisabled  = "player_disabled"
	TypePlayerReEnabled = "player_reenabled"
)

// Envelope is the wire form every game event travels in, from the outbox
// through NATS to the notifier.
type Envelope struct {
	EventID   uuid.UUID       `json:"eventId"`
	EventType string          `json:"eventType"`
	GameID    uuid.UUID       `json:"gameId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload struct in an Envelope with a fresh event ID.
func NewEnvelope(eventType string, gameID uuid.UUID, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		GameID:    gameID,
		Timestamp: at,
		Payload:   raw,
	}, nil
}
