package events

import "time"

// Event payload types shared between the game core and the notifier.

// GameStartingPayload is the payload for a game_starting event.
type GameStartingPayload struct {
	GameCode string    `json:"game_code"`
	StartsAt time.Time `json:"starts_at"`
}

// GameNowPlayingPayload is the payload for a game_now_playing event.
type GameNowPlayingPayload struct {
	GameCode string    `json:"game_code"`
	EndsAt   time.Time `json:"ends_at"`
}

// GameCompletedPayload is the payload for a game_completed event.
type GameCompletedPayload struct {
	GameCode            string `json:"game_code"`
	InsufficientPlayers bool   `json:"insufficient_players"`
}

// LobbyEndedPayload is the payload for a lobby_ended event, emitted when
// the host walks out of a lobby that has not started yet.
type LobbyEndedPayload struct {
	GameCode string `json:"game_code"`
}

// PlayerJoinedPayload is the payload for a player_joined event.
type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Verified bool   `json:"verified"`
}

// PlayerLeftPayload is the payload for a player_left event.
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
}

// PhotoUploadedPayload is the payload for a photo_uploaded event.
type PhotoUploadedPayload struct {
	PhotoID        string    `json:"photo_id"`
	TakenByID      string    `json:"taken_by_id"`
	PhotoOfID      string    `json:"photo_of_id"`
	VotingDeadline time.Time `json:"voting_deadline"`
}

// PhotoResolvedPayload is the payload for a photo_resolved event, emitted
// once per photo when voting closes.
type PhotoResolvedPayload struct {
	PhotoID    string `json:"photo_id"`
	TakenByID  string `json:"taken_by_id"`
	TakenByNN  string `json:"taken_by_nickname"`
	PhotoOfID  string `json:"photo_of_id"`
	PhotoOfNN  string `json:"photo_of_nickname"`
	Successful bool   `json:"successful"`
	// Eliminated is set when a successful elimination-mode tag knocked the
	// subject out of the game.
	Eliminated bool `json:"eliminated"`
}

// AmmoReplenishedPayload is the payload for an ammo_replenished event.
type AmmoReplenishedPayload struct {
	PlayerID string `json:"player_id"`
	Ammo     int    `json:"ammo"`
	// WasEmpty is true when the refill took the player from zero; the
	// out-of-band nudge is only worth sending in that case.
	WasEmpty bool `json:"was_empty"`
}

// PlayerDisabledPayload is the payload for a player_disabled event.
type PlayerDisabledPayload struct {
	PlayerID      string    `json:"player_id"`
	DisabledUntil time.Time `json:"disabled_until"`
	Minutes       int       `json:"minutes"`
}

// PlayerReEnabledPayload is the payload for a player_reenabled event.
type PlayerReEnabledPayload struct {
	PlayerID string `json:"player_id"`
}
