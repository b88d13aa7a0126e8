package game

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// Store defines what the game core needs from persistence. Mutators that
// decide races between timers and player actions are compare-and-set: they
// report whether this caller won the transition, and the core only fans out
// side effects on a win.
type Store interface {
	// Games.
	CreateGame(ctx context.Context, g *models.Game) error
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByCode(ctx context.Context, code string) (*models.Game, error)
	ListJoinableGames(ctx context.Context) ([]*models.Game, error)

	// ListUnfinishedGames returns games that have begun but not completed,
	// so a restarted process can re-arm their deadlines.
	ListUnfinishedGames(ctx context.Context) ([]*models.Game, error)
	CodeInUse(ctx context.Context, code string) (bool, error)

	// SetGameState moves a game from one state to the next. It returns
	// false when the game is no longer in the expected state.
	SetGameState(ctx context.Context, gameID uuid.UUID, from, to models.GameState) (bool, error)
	SetGameDeadlines(ctx context.Context, gameID uuid.UUID, start, end *time.Time) error

	// CompleteGame moves a game to COMPLETED from any earlier state. It
	// returns false when the game was already completed.
	CompleteGame(ctx context.Context, gameID uuid.UUID) (bool, error)
	DeleteGame(ctx context.Context, gameID uuid.UUID) error
	PurgeGamesCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// DeleteLobbiesCreatedBefore retires lobbies that were never started.
	DeleteLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Players.
	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
	CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error)
	SetPlayerVerified(ctx context.Context, playerID uuid.UUID) error
	SetPlayerConnection(ctx context.Context, playerID uuid.UUID, connectionID string) error
	SetPlayerLeft(ctx context.Context, playerID uuid.UUID) error
	DeletePlayer(ctx context.Context, playerID uuid.UUID) error
	DeleteUnverifiedJoinedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// DecrementAmmo spends one round. It returns the remaining count and
	// ErrNoAmmo when the clip was already empty.
	DecrementAmmo(ctx context.Context, playerID uuid.UUID) (int, error)

	// ReplenishPlayerAmmo adds one round to a player still below limit.
	// It returns nil when the clip was already full or the player is out
	// of the game.
	ReplenishPlayerAmmo(ctx context.Context, playerID uuid.UUID, limit int) (*AmmoRefill, error)

	SetPlayerDisabledUntil(ctx context.Context, playerID uuid.UUID, until *time.Time) error

	// EliminatePlayer knocks a player out. It returns false when the
	// player was already eliminated.
	EliminatePlayer(ctx context.Context, playerID uuid.UUID) (bool, error)

	// Photos and votes.
	CreatePhoto(ctx context.Context, photo *models.Photo, votes []*models.Vote) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	ListUnresolvedPhotos(ctx context.Context, gameID uuid.UUID) ([]*models.Photo, error)

	// MarkPhotoResolved settles a photo's outcome. It returns false when
	// another caller already resolved or deactivated it.
	MarkPhotoResolved(ctx context.Context, photoID uuid.UUID, successful bool) (bool, error)

	// DeactivatePhoto retires a photo without an outcome. It returns false
	// when the photo was already resolved or deactivated.
	DeactivatePhoto(ctx context.Context, photoID uuid.UUID) (bool, error)

	GetVotes(ctx context.Context, photoID uuid.UUID) ([]*models.Vote, error)

	// CastVote flips a player's pending ballot to a decision. It returns
	// ErrNotEligible when the player holds no ballot for the photo and
	// ErrDuplicateVote when the ballot was already cast.
	CastVote(ctx context.Context, photoID, playerID uuid.UUID, decision models.VoteDecision, at time.Time) error

	// DeletePendingVotesByPlayer removes every uncast ballot a player owes
	// in a game and returns the affected photo IDs so the caller can
	// re-check them for completion.
	DeletePendingVotesByPlayer(ctx context.Context, gameID, playerID uuid.UUID) ([]uuid.UUID, error)

	// Notifications.
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, playerID uuid.UUID) ([]*models.Notification, error)
	MarkNotificationsRead(ctx context.Context, playerID uuid.UUID) error
}

// AmmoRefill reports one player's ammo top-up.
type AmmoRefill struct {
	PlayerID uuid.UUID
	Ammo     int
	WasEmpty bool
}
