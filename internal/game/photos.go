package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/geo"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// AmmoResult reports what spending a round cost the shooter.
type AmmoResult struct {
	Ammo int `json:"ammo"`

	// InZone is false when an elimination-mode shot was fired outside the
	// current geofence. The round is still spent and the shooter is
	// locked out until DisabledUntil.
	InZone        bool       `json:"in_zone"`
	DisabledUntil *time.Time `json:"disabled_until,omitempty"`
}

// UseAmmo spends one round for a shot that hit nobody. The round is gone
// whether or not the shot was legal; in elimination games a shot from
// outside the zone also earns a lockout.
func (a *App) UseAmmo(ctx context.Context, playerID uuid.UUID, lat, lng float64) (*AmmoResult, error) {
	_, g, err := a.actingPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return a.spendAmmo(ctx, playerID, g, lat, lng)
}

// UploadPhotoRequest carries a tag attempt: a photo of another player.
type UploadPhotoRequest struct {
	TakenByID uuid.UUID `json:"taken_by_id"`
	PhotoOfID uuid.UUID `json:"photo_of_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ImageURL  string    `json:"image_url"`
}

// UploadPhotoResponse pairs the created photo with the cost of the shot.
// Photo is nil when the shot was fired outside the zone.
type UploadPhotoResponse struct {
	Photo *models.Photo `json:"photo,omitempty"`
	Ammo  *AmmoResult   `json:"ammo"`
}

// UploadPhoto spends a round and opens voting on the photo. Every in-game
// player other than the shooter and the subject gets a pending ballot, and
// the resolution timer is armed for the voting deadline.
func (a *App) UploadPhoto(ctx context.Context, req UploadPhotoRequest) (*UploadPhotoResponse, error) {
	taker, g, err := a.actingPlayer(ctx, req.TakenByID)
	if err != nil {
		return nil, err
	}

	subject, err := a.store.GetPlayer(ctx, req.PhotoOfID)
	if err != nil {
		return nil, err
	}
	if subject.GameID != g.ID {
		return nil, ErrNotFound
	}
	if !subject.CanAct() {
		return nil, fmt.Errorf("%w: subject cannot be tagged", ErrNotEligible)
	}

	// Ammo is spent before the zone ruling; an illegal shot still costs
	// the round.
	ammo, err := a.spendAmmo(ctx, req.TakenByID, g, req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}
	if !ammo.InZone {
		return &UploadPhotoResponse{Ammo: ammo}, nil
	}

	now := a.clock.Now()
	photo := &models.Photo{
		ID:             uuid.New(),
		GameID:         g.ID,
		TakenByID:      taker.ID,
		PhotoOfID:      subject.ID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ImageURL:       req.ImageURL,
		VotingDeadline: now.Add(models.VotingWindow),
		CreatedAt:      now,
	}

	voters, err := a.eligibleVoters(ctx, g.ID, taker.ID, subject.ID)
	if err != nil {
		return nil, err
	}
	votes := make([]*models.Vote, 0, len(voters))
	for _, voterID := range voters {
		votes = append(votes, &models.Vote{
			ID:       uuid.New(),
			PhotoID:  photo.ID,
			PlayerID: voterID,
			Decision: models.VotePending,
		})
	}

	if err := a.store.CreatePhoto(ctx, photo, votes); err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}

	photoID := photo.ID
	a.timers.Schedule(resolveKey(photoID), photo.VotingDeadline, func(ctx context.Context) error {
		return a.ResolvePhotoOnTimeout(ctx, photoID)
	})

	a.emit(ctx, events.TypePhotoUploaded, g.ID, events.PhotoUploadedPayload{
		PhotoID:        photo.ID.String(),
		TakenByID:      taker.ID.String(),
		PhotoOfID:      subject.ID.String(),
		VotingDeadline: photo.VotingDeadline,
	})

	log.Info().
		Str("photo_id", photo.ID.String()).
		Str("taken_by", taker.Nickname).
		Str("photo_of", subject.Nickname).
		Int("voters", len(votes)).
		Msg("photo uploaded, voting open")

	// A photo with no eligible voters resolves immediately, and fails,
	// because zero yes votes never beat zero no votes.
	if len(votes) == 0 {
		if err := a.resolveNow(ctx, photoID); err != nil {
			log.Error().Err(err).Str("photo_id", photoID.String()).Msg("failed to resolve voterless photo")
		}
	}

	return &UploadPhotoResponse{Photo: photo, Ammo: ammo}, nil
}

// CastVote records a player's verdict on a photo. The last ballot in closes
// voting on the spot rather than waiting for the deadline.
func (a *App) CastVote(ctx context.Context, playerID, photoID uuid.UUID, approve bool) error {
	photo, err := a.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.Resolved || photo.Deactivated {
		return ErrAlreadyResolved
	}

	decision := models.VoteNo
	if approve {
		decision = models.VoteYes
	}
	if err := a.store.CastVote(ctx, photoID, playerID, decision, a.clock.Now()); err != nil {
		return err
	}

	return a.resolveIfFullyVoted(ctx, photoID)
}

// ResolvePhotoOnTimeout closes voting when the window expires. Runs on the
// scheduler; ballots still pending count for nobody.
func (a *App) ResolvePhotoOnTimeout(ctx context.Context, photoID uuid.UUID) error {
	return a.resolveNow(ctx, photoID)
}

func (a *App) resolveIfFullyVoted(ctx context.Context, photoID uuid.UUID) error {
	votes, err := a.store.GetVotes(ctx, photoID)
	if err != nil {
		return fmt.Errorf("get votes: %w", err)
	}
	if !models.TallyVotes(votes).AllCast() {
		return nil
	}
	return a.resolveNow(ctx, photoID)
}

// resolveNow settles a photo's outcome. The early-completion path and the
// deadline timer can both land here; the store's resolved flag is the
// tiebreaker and only the winner fans out.
func (a *App) resolveNow(ctx context.Context, photoID uuid.UUID) error {
	photo, err := a.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.Resolved || photo.Deactivated {
		return nil
	}

	votes, err := a.store.GetVotes(ctx, photoID)
	if err != nil {
		return fmt.Errorf("get votes: %w", err)
	}
	successful := models.TallyVotes(votes).Successful()

	won, err := a.store.MarkPhotoResolved(ctx, photoID, successful)
	if err != nil {
		return fmt.Errorf("mark photo resolved: %w", err)
	}
	if !won {
		return nil
	}
	a.timers.Cancel(resolveKey(photoID))

	taker, err := a.store.GetPlayer(ctx, photo.TakenByID)
	if err != nil {
		return err
	}
	subject, err := a.store.GetPlayer(ctx, photo.PhotoOfID)
	if err != nil {
		return err
	}

	g, err := a.store.GetGame(ctx, photo.GameID)
	if err != nil {
		return err
	}

	eliminated := false
	if successful && g.IsElimination() {
		eliminated, err = a.store.EliminatePlayer(ctx, subject.ID)
		if err != nil {
			return fmt.Errorf("eliminate player: %w", err)
		}
	}

	a.emit(ctx, events.TypePhotoResolved, photo.GameID, events.PhotoResolvedPayload{
		PhotoID:    photo.ID.String(),
		TakenByID:  taker.ID.String(),
		TakenByNN:  taker.Nickname,
		PhotoOfID:  subject.ID.String(),
		PhotoOfNN:  subject.Nickname,
		Successful: successful,
		Eliminated: eliminated,
	})

	log.Info().
		Str("photo_id", photo.ID.String()).
		Bool("successful", successful).
		Bool("eliminated", eliminated).
		Msg("photo resolved")

	if eliminated {
		remaining, err := a.store.CountActivePlayers(ctx, photo.GameID)
		if err != nil {
			return fmt.Errorf("count players: %w", err)
		}
		if remaining < models.MinActivePlayers {
			return a.CompleteGame(ctx, photo.GameID, false)
		}
	}
	return nil
}

// spendAmmo decrements the clip and applies the zone ruling shared by
// UseAmmo and UploadPhoto. Every spend arms a refill for the round just
// used, whatever the zone ruling turns out to be.
func (a *App) spendAmmo(ctx context.Context, playerID uuid.UUID, g *models.Game, lat, lng float64) (*AmmoResult, error) {
	remaining, err := a.store.DecrementAmmo(ctx, playerID)
	if err != nil {
		return nil, err
	}
	result := &AmmoResult{Ammo: remaining, InZone: true}

	now := a.clock.Now()
	a.timers.Schedule(refillKey(playerID), now.Add(g.AmmoRefillInterval), func(ctx context.Context) error {
		return a.ReplenishAmmo(ctx, playerID)
	})

	if !g.IsElimination() {
		return result, nil
	}
	in, err := geo.InZone(g, lat, lng, now)
	if err != nil {
		return nil, fmt.Errorf("zone check: %w", err)
	}
	if in {
		return result, nil
	}

	penalty, err := geo.DisableDuration(g)
	if err != nil {
		return nil, fmt.Errorf("disable duration: %w", err)
	}
	until := now.Add(penalty)
	if err := a.store.SetPlayerDisabledUntil(ctx, playerID, &until); err != nil {
		return nil, fmt.Errorf("disable player: %w", err)
	}

	a.timers.Schedule(reenableKey(playerID), until, func(ctx context.Context) error {
		return a.ReEnablePlayer(ctx, playerID)
	})

	a.emit(ctx, events.TypePlayerDisabled, g.ID, events.PlayerDisabledPayload{
		PlayerID:      playerID.String(),
		DisabledUntil: until,
		Minutes:       int(penalty.Minutes()),
	})

	log.Info().
		Str("player_id", playerID.String()).
		Time("until", until).
		Msg("player disabled for out-of-zone shot")

	result.InZone = false
	result.DisabledUntil = &until
	return result, nil
}

// actingPlayer loads a player and their game and checks the player may take
// game actions right now.
func (a *App) actingPlayer(ctx context.Context, playerID uuid.UUID) (*models.Player, *models.Game, error) {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	g, err := a.store.GetGame(ctx, p.GameID)
	if err != nil {
		return nil, nil, err
	}

	if g.State != models.GameStateActive {
		return nil, nil, fmt.Errorf("%w: game is %s", ErrInvalidState, g.State)
	}
	switch {
	case p.LeftGame:
		return nil, nil, ErrPlayerLeft
	case !p.Verified:
		return nil, nil, ErrPlayerNotVerified
	case p.Eliminated:
		return nil, nil, ErrPlayerEliminated
	case p.DisabledAt(a.clock.Now()):
		return nil, nil, ErrPlayerDisabled
	}
	return p, g, nil
}

// eligibleVoters returns the players who get a ballot on a new photo:
// everyone still in the game except the shooter and the subject. Eliminated
// players keep voting; they are out of the hunt, not out of the jury.
func (a *App) eligibleVoters(ctx context.Context, gameID, takenByID, photoOfID uuid.UUID) ([]uuid.UUID, error) {
	players, err := a.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	var voters []uuid.UUID
	for _, p := range players {
		if p.ID == takenByID || p.ID == photoOfID {
			continue
		}
		if !p.InGame() {
			continue
		}
		voters = append(voters, p.ID)
	}
	return voters, nil
}
