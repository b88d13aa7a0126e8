package game

import "errors"

// Sentinel errors returned by the game core. The API layer maps these onto
// response codes; callers inside the module test with errors.Is.
var (
	// ErrNotFound is returned when a game, player, or photo does not exist
	// or has been soft deleted.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not legal in the
	// game's current lifecycle state.
	ErrInvalidState = errors.New("invalid game state")

	// ErrNotHost is returned when a non-host player attempts a host-only
	// operation.
	ErrNotHost = errors.New("player is not the host")

	// ErrNotEligible is returned when a player cannot take part in an
	// operation, for example voting on a photo they have no ballot for.
	ErrNotEligible = errors.New("player not eligible")

	// ErrGameFull is returned when a join would exceed the player cap.
	ErrGameFull = errors.New("game is full")

	// ErrNicknameTaken is returned when a joining nickname collides with a
	// player already in the game.
	ErrNicknameTaken = errors.New("nickname already taken")

	// ErrVerificationFailed is returned when a verification code does not
	// match.
	ErrVerificationFailed = errors.New("verification code does not match")

	// ErrNotEnoughPlayers is returned when a game cannot begin because too
	// few players have verified.
	ErrNotEnoughPlayers = errors.New("not enough verified players")

	// ErrNoAmmo is returned when a player tries to take a photo with an
	// empty clip.
	ErrNoAmmo = errors.New("no ammo remaining")

	// ErrPlayerDisabled is returned while a player is serving an
	// out-of-zone lockout.
	ErrPlayerDisabled = errors.New("player is disabled")

	// ErrPlayerEliminated is returned when an eliminated player attempts
	// to act.
	ErrPlayerEliminated = errors.New("player is eliminated")

	// ErrPlayerLeft is returned when a player who left the game attempts
	// to act.
	ErrPlayerLeft = errors.New("player has left the game")

	// ErrPlayerNotVerified is returned when an unverified player attempts
	// an operation that requires verification.
	ErrPlayerNotVerified = errors.New("player not verified")

	// ErrDuplicateVote is returned when a player votes twice on the same
	// photo.
	ErrDuplicateVote = errors.New("vote already cast")

	// ErrAlreadyResolved is returned when a vote arrives after the photo's
	// outcome has been decided.
	ErrAlreadyResolved = errors.New("photo already resolved")

	// ErrValidation is returned for requests whose settings fall outside
	// the allowed bounds.
	ErrValidation = errors.New("invalid request")
)
