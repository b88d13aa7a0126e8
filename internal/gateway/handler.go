package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
)

// Handler serves the websocket endpoint. Each accepted connection becomes
// the player's live channel: its ID is written onto the player row so the
// dispatcher can target it, and cleared again when the socket drops.
type Handler struct {
	manager *ConnectionManager
	app     *game.App
}

// NewHandler creates a websocket Handler.
func NewHandler(manager *ConnectionManager, app *game.App) *Handler {
	return &Handler{manager: manager, app: app}
}

// ServeHTTP upgrades GET /ws?player_id=<uuid> to a websocket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		http.Error(w, "invalid player_id", http.StatusBadRequest)
		return
	}

	p, err := h.app.Player(r.Context(), playerID)
	if err != nil {
		http.Error(w, "unknown player", http.StatusNotFound)
		return
	}
	if p.LeftGame || p.Deleted {
		http.Error(w, "player no longer in game", http.StatusGone)
		return
	}

	conn, err := h.manager.UpgradeConnection(w, r, p.ID, p.GameID, func() {
		// The request context is gone by the time the socket closes.
		if err := h.app.ClearConnection(context.Background(), playerID); err != nil {
			log.Warn().Err(err).Str("player_id", playerID.String()).Msg("failed to clear connection")
		}
	})
	if err != nil {
		log.Warn().Err(err).Str("player_id", playerID.String()).Msg("websocket upgrade failed")
		return
	}

	if err := h.app.SetConnection(r.Context(), playerID, conn.ID); err != nil {
		log.Warn().Err(err).Str("player_id", playerID.String()).Msg("failed to record connection")
	}
}
