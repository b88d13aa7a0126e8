package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/geo"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
	"github.com/sheridanzzz/CamTag-WebApp/internal/scheduler"
)

// EventSink receives every domain event the core emits. In production this
// is the outbox repository; in dev mode it feeds the notifier directly.
type EventSink interface {
	Emit(ctx context.Context, env events.Envelope) error
}

// Timers is the slice of the deadline scheduler the core uses.
type Timers interface {
	Schedule(key string, deadline time.Time, fn scheduler.Job)
	Cancel(key string)
}

// CodeSender delivers a verification code to a player's contact address.
type CodeSender interface {
	SendCode(ctx context.Context, p *models.Player, code string) error
}

// App holds the game rules. Every entry point re-reads current state before
// mutating, so a stale timer or a racing request degrades to a no-op rather
// than a double fire.
type App struct {
	store  Store
	sink   EventSink
	timers Timers
	codes  CodeSender
	clock  clockwork.Clock
}

// NewApp creates the game core.
func NewApp(store Store, sink EventSink, timers Timers, codes CodeSender, clock clockwork.Clock) *App {
	return &App{
		store:  store,
		sink:   sink,
		timers: timers,
		codes:  codes,
		clock:  clock,
	}
}

// CreateGameRequest carries the host's settings for a new game.
type CreateGameRequest struct {
	Nickname string `json:"nickname"`
	Contact  string `json:"contact"`

	Mode        models.GameMode             `json:"mode"`
	Elimination *models.EliminationSettings `json:"elimination,omitempty"`

	TimeLimit          time.Duration `json:"time_limit"`
	StartDelay         time.Duration `json:"start_delay"`
	AmmoLimit          int           `json:"ammo_limit"`
	AmmoRefillInterval time.Duration `json:"ammo_refill_interval"`
	JoinableAnytime    bool          `json:"joinable_anytime"`
}

func (r CreateGameRequest) validate() error {
	if strings.TrimSpace(r.Nickname) == "" {
		return fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	if strings.TrimSpace(r.Contact) == "" {
		return fmt.Errorf("%w: contact is required", ErrValidation)
	}
	if r.TimeLimit < models.MinTimeLimit || r.TimeLimit > models.MaxTimeLimit {
		return fmt.Errorf("%w: time limit must be between %v and %v", ErrValidation, models.MinTimeLimit, models.MaxTimeLimit)
	}
	if r.StartDelay < models.MinStartDelay || r.StartDelay > models.MaxStartDelay {
		return fmt.Errorf("%w: start delay must be between %v and %v", ErrValidation, models.MinStartDelay, models.MaxStartDelay)
	}
	if r.AmmoLimit < models.MinAmmoLimit || r.AmmoLimit > models.MaxAmmoLimit {
		return fmt.Errorf("%w: ammo limit must be between %d and %d", ErrValidation, models.MinAmmoLimit, models.MaxAmmoLimit)
	}
	if r.AmmoRefillInterval < models.MinAmmoRefillInterval || r.AmmoRefillInterval > models.MaxAmmoRefillInterval {
		return fmt.Errorf("%w: ammo refill interval must be between %v and %v", ErrValidation, models.MinAmmoRefillInterval, models.MaxAmmoRefillInterval)
	}
	switch r.Mode {
	case models.GameModeStandard:
		if r.Elimination != nil {
			return fmt.Errorf("%w: standard games take no zone settings", ErrValidation)
		}
	case models.GameModeElimination:
		if r.Elimination == nil {
			return fmt.Errorf("%w: elimination games need zone settings", ErrValidation)
		}
		if r.Elimination.InitialRadius < models.MinZoneRadiusMeters {
			return fmt.Errorf("%w: initial radius must be at least %v meters", ErrValidation, models.MinZoneRadiusMeters)
		}
	default:
		return fmt.Errorf("%w: unknown game mode %q", ErrValidation, r.Mode)
	}
	return nil
}

// CreateGame creates a game in the lobby state with the caller as host. The
// host still has to verify like every other player.
func (a *App) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, *models.Player, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	code, err := a.uniqueGameCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := a.clock.Now()
	g := &models.Game{
		ID:                 uuid.New(),
		Code:               code,
		Mode:               req.Mode,
		Elimination:        req.Elimination,
		State:              models.GameStateLobby,
		TimeLimit:          req.TimeLimit,
		StartDelay:         req.StartDelay,
		AmmoLimit:          req.AmmoLimit,
		AmmoRefillInterval: req.AmmoRefillInterval,
		JoinableAnytime:    req.JoinableAnytime,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := a.store.CreateGame(ctx, g); err != nil {
		return nil, nil, fmt.Errorf("create game: %w", err)
	}

	host, err := a.createPlayer(ctx, g, req.Nickname, req.Contact, true)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("game_id", g.ID.String()).
		Str("code", g.Code).
		Str("mode", string(g.Mode)).
		Msg("game created")
	return g, host, nil
}

// JoinGameRequest carries a join attempt against a game code.
type JoinGameRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
	Contact  string `json:"contact"`
}

// JoinGame adds an unverified player to a game. Joining mid-game is only
// allowed when the host enabled it.
func (a *App) JoinGame(ctx context.Context, req JoinGameRequest) (*models.Game, *models.Player, error) {
	if strings.TrimSpace(req.Nickname) == "" || strings.TrimSpace(req.Contact) == "" {
		return nil, nil, fmt.Errorf("%w: nickname and contact are required", ErrValidation)
	}

	g, err := a.store.GetGameByCode(ctx, strings.ToLower(strings.TrimSpace(req.Code)))
	if err != nil {
		return nil, nil, err
	}

	switch g.State {
	case models.GameStateLobby:
		// Always joinable.
	case models.GameStateStarting, models.GameStateActive:
		if !g.JoinableAnytime {
			return nil, nil, fmt.Errorf("%w: game has already started", ErrInvalidState)
		}
	default:
		return nil, nil, fmt.Errorf("%w: game is over", ErrInvalidState)
	}

	p, err := a.createPlayer(ctx, g, req.Nickname, req.Contact, false)
	if err != nil {
		return nil, nil, err
	}
	return g, p, nil
}

func (a *App) createPlayer(ctx context.Context, g *models.Game, nickname, contact string, host bool) (*models.Player, error) {
	players, err := a.store.ListPlayers(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	active := 0
	for _, existing := range players {
		if existing.Deleted || existing.LeftGame {
			continue
		}
		if strings.EqualFold(existing.Nickname, nickname) {
			return nil, ErrNicknameTaken
		}
		active++
	}
	if active >= models.MaxPlayersPerGame {
		return nil, ErrGameFull
	}

	p := &models.Player{
		ID:               uuid.New(),
		GameID:           g.ID,
		Nickname:         strings.TrimSpace(nickname),
		Contact:          strings.TrimSpace(contact),
		IsHost:           host,
		VerificationCode: newVerificationCode(),
		Ammo:             g.AmmoLimit,
		CreatedAt:        a.clock.Now(),
	}
	if err := a.store.CreatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}

	if err := a.codes.SendCode(ctx, p, p.VerificationCode); err != nil {
		log.Error().Err(err).Str("player_id", p.ID.String()).Msg("failed to send verification code")
	}

	a.emit(ctx, events.TypePlayerJoined, g.ID, events.PlayerJoinedPayload{
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
		Verified: false,
	})
	return p, nil
}

// VerifyPlayer confirms a player's contact address with the code that was
// sent to it.
func (a *App) VerifyPlayer(ctx context.Context, playerID uuid.UUID, code string) (*models.Player, error) {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p.Verified {
		return p, nil
	}
	if !strings.EqualFold(strings.TrimSpace(code), p.VerificationCode) {
		return nil, ErrVerificationFailed
	}
	if err := a.store.SetPlayerVerified(ctx, playerID); err != nil {
		return nil, fmt.Errorf("verify player: %w", err)
	}
	p.Verified = true

	a.emit(ctx, events.TypePlayerJoined, p.GameID, events.PlayerJoinedPayload{
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
		Verified: true,
	})
	return p, nil
}

// ResendCode sends an unverified player their verification code again.
func (a *App) ResendCode(ctx context.Context, playerID uuid.UUID) error {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.Verified {
		return nil
	}
	return a.codes.SendCode(ctx, p, p.VerificationCode)
}

// StatusResponse is the full refresh a client asks for on reconnect.
type StatusResponse struct {
	Game    *models.Game     `json:"game"`
	Players []*models.Player `json:"players"`

	// ZoneRadius is the current geofence radius in meters; nil outside
	// active elimination games.
	ZoneRadius *float64 `json:"zone_radius,omitempty"`

	// PendingPhotos are the photos this player still owes a vote on.
	PendingPhotos []*models.Photo `json:"pending_photos"`

	Notifications []*models.Notification `json:"notifications"`
}

// GameStatus returns everything a client needs to redraw its screen.
func (a *App) GameStatus(ctx context.Context, playerID uuid.UUID) (*StatusResponse, error) {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	g, err := a.store.GetGame(ctx, p.GameID)
	if err != nil {
		return nil, err
	}
	players, err := a.store.ListPlayers(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	resp := &StatusResponse{Game: g, Players: players, PendingPhotos: []*models.Photo{}}

	if g.IsElimination() && g.State == models.GameStateActive {
		if r, err := geo.CurrentRadius(g, a.clock.Now()); err == nil {
			resp.ZoneRadius = &r
		}
	}

	unresolved, err := a.store.ListUnresolvedPhotos(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	for _, photo := range unresolved {
		votes, err := a.store.GetVotes(ctx, photo.ID)
		if err != nil {
			return nil, fmt.Errorf("get votes: %w", err)
		}
		for _, v := range votes {
			if v.PlayerID == playerID && v.Decision == models.VotePending {
				resp.PendingPhotos = append(resp.PendingPhotos, photo)
				break
			}
		}
	}

	notes, err := a.store.ListNotifications(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	resp.Notifications = notes
	return resp, nil
}

// ListJoinableGames returns lobby games a new player could join, for the
// public game list screen.
func (a *App) ListJoinableGames(ctx context.Context) ([]*models.Game, error) {
	return a.store.ListJoinableGames(ctx)
}

// GameByCode looks up one game by its join code.
func (a *App) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	return a.store.GetGameByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
}

// Player looks up one player by ID.
func (a *App) Player(ctx context.Context, playerID uuid.UUID) (*models.Player, error) {
	return a.store.GetPlayer(ctx, playerID)
}

// SetConnection records a player's live-channel handle.
func (a *App) SetConnection(ctx context.Context, playerID uuid.UUID, connectionID string) error {
	return a.store.SetPlayerConnection(ctx, playerID, connectionID)
}

// ClearConnection drops a player's live-channel handle. The player keeps
// receiving off-line messages until they reconnect.
func (a *App) ClearConnection(ctx context.Context, playerID uuid.UUID) error {
	return a.store.SetPlayerConnection(ctx, playerID, "")
}

// Notifications returns a player's notification feed, newest last.
func (a *App) Notifications(ctx context.Context, playerID uuid.UUID) ([]*models.Notification, error) {
	return a.store.ListNotifications(ctx, playerID)
}

// MarkNotificationsRead clears a player's unread flag.
func (a *App) MarkNotificationsRead(ctx context.Context, playerID uuid.UUID) error {
	return a.store.MarkNotificationsRead(ctx, playerID)
}

// RemoveUnverifiedPlayer lets the host kick a player who never verified.
func (a *App) RemoveUnverifiedPlayer(ctx context.Context, hostID, playerID uuid.UUID) error {
	host, err := a.store.GetPlayer(ctx, hostID)
	if err != nil {
		return err
	}
	if !host.IsHost {
		return ErrNotHost
	}

	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.GameID != host.GameID {
		return ErrNotFound
	}
	if p.Verified {
		return fmt.Errorf("%w: player already verified", ErrNotEligible)
	}
	return a.store.DeletePlayer(ctx, playerID)
}

func (a *App) uniqueGameCode(ctx context.Context) (string, error) {
	for i := 0; i < 20; i++ {
		code := models.GenerateGameCode()
		used, err := a.store.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check game code: %w", err)
		}
		if !used {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not find a free game code")
}

// emit wraps a payload and hands it to the sink. Emit failures are logged,
// not propagated; the state change already happened and dropping the
// notification is the lesser evil.
func (a *App) emit(ctx context.Context, eventType string, gameID uuid.UUID, payload any) {
	env, err := events.NewEnvelope(eventType, gameID, a.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := a.sink.Emit(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("game_id", gameID.String()).
			Msg("failed to emit event")
	}
}

func newVerificationCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}

// Timer keys. One stable key per deadline so a reschedule replaces rather
// than duplicates.
func activateKey(gameID uuid.UUID) string { return "game:" + gameID.String() + ":activate" }
func completeKey(gameID uuid.UUID) string { return "game:" + gameID.String() + ":complete" }
func refillKey(playerID uuid.UUID) string { return "player:" + playerID.String() + ":refill" }
func resolveKey(photoID uuid.UUID) string { return "photo:" + photoID.String() + ":resolve" }
func reenableKey(playerID uuid.UUID) string { return "player:" + playerID.String() + ":reenable" }
