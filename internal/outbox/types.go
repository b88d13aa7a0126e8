package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one row of the game outbox: a domain event written in the same
// database as the state change that produced it, waiting to be relayed to
// the message bus.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	GameID    uuid.UUID       `json:"game_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Publisher relays an outbox event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
