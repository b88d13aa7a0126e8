package models

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameMode defines the rule set of a game.
type GameMode string

const (
	GameModeStandard    GameMode = "STANDARD"
	GameModeElimination GameMode = "ELIMINATION"
)

// GameState defines the lifecycle state of a game. States only move forward.
type GameState string

const (
	GameStateLobby     GameState = "LOBBY"
	GameStateStarting  GameState = "STARTING"
	GameStateActive    GameState = "ACTIVE"
	GameStateCompleted GameState = "COMPLETED"
)

// Rule bounds carried over from the game design: every limit a host can
// configure has a hard floor and ceiling.
const (
	MinTimeLimit          = 10 * time.Minute
	MaxTimeLimit          = 24 * time.Hour
	MinStartDelay         = 1 * time.Minute
	MaxStartDelay         = 10 * time.Minute
	MinAmmoRefillInterval = 1 * time.Minute
	MaxAmmoRefillInterval = 1 * time.Hour
	MinAmmoLimit          = 1
	MaxAmmoLimit          = 9
	MaxPlayersPerGame     = 16
	MinActivePlayers      = 2

	// VotingWindow is how long voting stays open after a photo upload.
	VotingWindow = 15 * time.Minute

	// MinZoneRadiusMeters is the floor the shrinking geofence never drops below,
	// and the smallest starting radius a host may configure.
	MinZoneRadiusMeters = 20.0
)

var stateOrder = map[GameState]int{
	GameStateLobby:     0,
	GameStateStarting:  1,
	GameStateActive:    2,
	GameStateCompleted: 3,
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s GameState) Before(other GameState) bool {
	return stateOrder[s] < stateOrder[other]
}

// EliminationSettings holds the fields that only exist for elimination games:
// the zone center and the starting radius.
type EliminationSettings struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	InitialRadius float64 `json:"initial_radius_m"`
}

// Game represents one session of CamTag.
type Game struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Mode GameMode  `json:"mode"`

	// Elimination is nil for standard games.
	Elimination *EliminationSettings `json:"elimination,omitempty"`

	State GameState `json:"state"`

	TimeLimit          time.Duration `json:"time_limit"`
	StartDelay         time.Duration `json:"start_delay"`
	AmmoLimit          int           `json:"ammo_limit"`
	AmmoRefillInterval time.Duration `json:"ammo_refill_interval"`
	JoinableAnytime    bool          `json:"joinable_anytime"`

	// StartDeadline and EndDeadline are nil until the host begins the game.
	StartDeadline *time.Time `json:"start_deadline,omitempty"`
	EndDeadline   *time.Time `json:"end_deadline,omitempty"`

	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsElimination reports whether the game uses the shrinking-zone rule set.
func (g *Game) IsElimination() bool {
	return g.Mode == GameModeElimination
}

// InLobbyPhase reports whether the game has not yet gone live, i.e. players
// are still looking at the lobby screen.
func (g *Game) InLobbyPhase() bool {
	return g.State == GameStateLobby || g.State == GameStateStarting
}

const gameCodeAlphabet = "abcdefghijklmnopqrstuvwxyz1234567890"

// GenerateGameCode returns a six character alphanumeric join code with no
// repeated characters.
func GenerateGameCode() string {
	var b strings.Builder
	for b.Len() < 6 {
		c := gameCodeAlphabet[rand.Intn(len(gameCodeAlphabet))]
		if strings.ContainsRune(b.String(), rune(c)) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
