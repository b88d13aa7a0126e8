package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// BeginGame is the host pressing start. The game moves to STARTING, the
// start and end deadlines are fixed, and the activation timer is armed.
func (a *App) BeginGame(ctx context.Context, hostID uuid.UUID) (*models.Game, error) {
	host, err := a.store.GetPlayer(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if !host.IsHost {
		return nil, ErrNotHost
	}

	g, err := a.store.GetGame(ctx, host.GameID)
	if err != nil {
		return nil, err
	}
	if g.State != models.GameStateLobby {
		return nil, fmt.Errorf("%w: game is %s", ErrInvalidState, g.State)
	}

	verified, err := a.store.CountActivePlayers(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("count players: %w", err)
	}
	if verified < models.MinActivePlayers {
		return nil, ErrNotEnoughPlayers
	}

	ok, err := a.store.SetGameState(ctx, g.ID, models.GameStateLobby, models.GameStateStarting)
	if err != nil {
		return nil, fmt.Errorf("set game state: %w", err)
	}
	if !ok {
		// Someone else started it between our read and the write.
		return nil, fmt.Errorf("%w: game already starting", ErrInvalidState)
	}

	start := a.clock.Now().Add(g.StartDelay)
	end := start.Add(g.TimeLimit)
	if err := a.store.SetGameDeadlines(ctx, g.ID, &start, &end); err != nil {
		return nil, fmt.Errorf("set deadlines: %w", err)
	}
	g.State = models.GameStateStarting
	g.StartDeadline = &start
	g.EndDeadline = &end

	gameID := g.ID
	a.timers.Schedule(activateKey(gameID), start, func(ctx context.Context) error {
		return a.ActivateGame(ctx, gameID)
	})
	a.timers.Schedule(completeKey(gameID), end, func(ctx context.Context) error {
		return a.CompleteGame(ctx, gameID, false)
	})

	a.emit(ctx, events.TypeGameStarting, g.ID, events.GameStartingPayload{
		GameCode: g.Code,
		StartsAt: start,
	})

	log.Info().
		Str("game_id", g.ID.String()).
		Time("starts_at", start).
		Time("ends_at", end).
		Msg("game starting")
	return g, nil
}

// ActivateGame flips a game from STARTING to ACTIVE when the countdown
// expires. Runs on the scheduler; losing the state race means the game was
// completed first and there is nothing to do.
func (a *App) ActivateGame(ctx context.Context, gameID uuid.UUID) error {
	ok, err := a.store.SetGameState(ctx, gameID, models.GameStateStarting, models.GameStateActive)
	if err != nil {
		return fmt.Errorf("activate game: %w", err)
	}
	if !ok {
		log.Debug().Str("game_id", gameID.String()).Msg("activation skipped, game no longer starting")
		return nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}

	var endsAt = a.clock.Now()
	if g.EndDeadline != nil {
		endsAt = *g.EndDeadline
	}
	a.emit(ctx, events.TypeGameNowPlaying, gameID, events.GameNowPlayingPayload{
		GameCode: g.Code,
		EndsAt:   endsAt,
	})

	log.Info().Str("game_id", gameID.String()).Msg("game now playing")
	return nil
}

// CompleteGame ends a game, whether by time limit, by elimination leaving
// a winner, or by too many players walking out. Exactly one caller wins the
// completion; everyone else no-ops.
func (a *App) CompleteGame(ctx context.Context, gameID uuid.UUID, insufficientPlayers bool) error {
	ok, err := a.store.CompleteGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("complete game: %w", err)
	}
	if !ok {
		log.Debug().Str("game_id", gameID.String()).Msg("completion skipped, game already over")
		return nil
	}

	a.timers.Cancel(activateKey(gameID))
	a.timers.Cancel(completeKey(gameID))

	// Voting that is still open dies with the game.
	unresolved, err := a.store.ListUnresolvedPhotos(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to list unresolved photos at completion")
	} else {
		for _, photo := range unresolved {
			if _, err := a.store.DeactivatePhoto(ctx, photo.ID); err != nil {
				log.Error().Err(err).Str("photo_id", photo.ID.String()).Msg("failed to deactivate photo")
				continue
			}
			a.timers.Cancel(resolveKey(photo.ID))
		}
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	a.emit(ctx, events.TypeGameCompleted, gameID, events.GameCompletedPayload{
		GameCode:            g.Code,
		InsufficientPlayers: insufficientPlayers,
	})

	log.Info().
		Str("game_id", gameID.String()).
		Bool("insufficient_players", insufficientPlayers).
		Msg("game completed")
	return nil
}

// LeaveGame removes a player. A host abandoning an unstarted lobby kills the
// lobby for everyone; leaving a live game cascades into the photos and votes
// the player was involved in.
func (a *App) LeaveGame(ctx context.Context, playerID uuid.UUID) error {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.LeftGame {
		return nil
	}

	g, err := a.store.GetGame(ctx, p.GameID)
	if err != nil {
		return err
	}

	// Host departure is fatal to the lobby only before start is pressed;
	// once the countdown is running the game goes on without them.
	if g.State == models.GameStateLobby && p.IsHost {
		return a.endLobby(ctx, g)
	}

	if err := a.store.SetPlayerLeft(ctx, playerID); err != nil {
		return fmt.Errorf("mark player left: %w", err)
	}

	a.emit(ctx, events.TypePlayerLeft, g.ID, events.PlayerLeftPayload{
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
	})

	if g.State != models.GameStateActive {
		return nil
	}

	// Photos the leaver took can never be acted on again.
	unresolved, err := a.store.ListUnresolvedPhotos(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("list unresolved photos: %w", err)
	}
	for _, photo := range unresolved {
		if photo.TakenByID != playerID {
			continue
		}
		if _, err := a.store.DeactivatePhoto(ctx, photo.ID); err != nil {
			log.Error().Err(err).Str("photo_id", photo.ID.String()).Msg("failed to deactivate leaver's photo")
			continue
		}
		a.timers.Cancel(resolveKey(photo.ID))
	}

	// Votes the leaver owed no longer block resolution. Any photo that is
	// now fully voted resolves immediately.
	affected, err := a.store.DeletePendingVotesByPlayer(ctx, g.ID, playerID)
	if err != nil {
		return fmt.Errorf("delete pending votes: %w", err)
	}
	for _, photoID := range affected {
		if err := a.resolveIfFullyVoted(ctx, photoID); err != nil {
			log.Error().Err(err).Str("photo_id", photoID.String()).Msg("failed to re-check photo after leave")
		}
	}

	remaining, err := a.store.CountActivePlayers(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("count players: %w", err)
	}
	if remaining < models.MinActivePlayers {
		return a.CompleteGame(ctx, g.ID, true)
	}

	log.Info().
		Str("game_id", g.ID.String()).
		Str("player_id", playerID.String()).
		Int("remaining", remaining).
		Msg("player left game")
	return nil
}

// endLobby tears a lobby down after the host walks out.
func (a *App) endLobby(ctx context.Context, g *models.Game) error {
	if err := a.store.DeleteGame(ctx, g.ID); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	a.timers.Cancel(activateKey(g.ID))
	a.timers.Cancel(completeKey(g.ID))

	a.emit(ctx, events.TypeLobbyEnded, g.ID, events.LobbyEndedPayload{GameCode: g.Code})

	log.Info().Str("game_id", g.ID.String()).Msg("lobby ended, host left")
	return nil
}

// ReplenishAmmo returns the round a player spent one refill interval ago.
// Runs on the scheduler, armed per ammo use; the spend already happened so
// a stale timer just finds a full clip or a finished game and no-ops.
func (a *App) ReplenishAmmo(ctx context.Context, playerID uuid.UUID) error {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	g, err := a.store.GetGame(ctx, p.GameID)
	if err != nil {
		return err
	}
	if g.State != models.GameStateActive {
		return nil
	}

	refill, err := a.store.ReplenishPlayerAmmo(ctx, playerID, g.AmmoLimit)
	if err != nil {
		return fmt.Errorf("replenish ammo: %w", err)
	}
	if refill == nil {
		return nil
	}

	a.emit(ctx, events.TypeAmmoReplenished, g.ID, events.AmmoReplenishedPayload{
		PlayerID: refill.PlayerID.String(),
		Ammo:     refill.Ammo,
		WasEmpty: refill.WasEmpty,
	})
	return nil
}

// RestoreTimers re-arms every deadline for games that were in flight when
// the process went down. Deadlines already in the past fire immediately, so
// a game that should have activated or completed while the process was
// offline catches up on the spot.
func (a *App) RestoreTimers(ctx context.Context) error {
	games, err := a.store.ListUnfinishedGames(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished games: %w", err)
	}

	for _, g := range games {
		gameID := g.ID
		if g.State == models.GameStateStarting && g.StartDeadline != nil {
			a.timers.Schedule(activateKey(gameID), *g.StartDeadline, func(ctx context.Context) error {
				return a.ActivateGame(ctx, gameID)
			})
		}
		if g.EndDeadline != nil {
			a.timers.Schedule(completeKey(gameID), *g.EndDeadline, func(ctx context.Context) error {
				return a.CompleteGame(ctx, gameID, false)
			})
		}
		unresolved, err := a.store.ListUnresolvedPhotos(ctx, gameID)
		if err != nil {
			return fmt.Errorf("list unresolved photos: %w", err)
		}
		for _, photo := range unresolved {
			photoID := photo.ID
			a.timers.Schedule(resolveKey(photoID), photo.VotingDeadline, func(ctx context.Context) error {
				return a.ResolvePhotoOnTimeout(ctx, photoID)
			})
		}

		players, err := a.store.ListPlayers(ctx, gameID)
		if err != nil {
			return fmt.Errorf("list players: %w", err)
		}
		for _, p := range players {
			playerID := p.ID
			if p.DisabledUntil != nil {
				a.timers.Schedule(reenableKey(playerID), *p.DisabledUntil, func(ctx context.Context) error {
					return a.ReEnablePlayer(ctx, playerID)
				})
			}
			// Per-use refill deadlines are not persisted; a spent clip
			// regains its first round one interval after boot.
			if g.State == models.GameStateActive && p.InGame() && !p.Eliminated && p.Ammo < g.AmmoLimit {
				a.timers.Schedule(refillKey(playerID), a.clock.Now().Add(g.AmmoRefillInterval), func(ctx context.Context) error {
					return a.ReplenishAmmo(ctx, playerID)
				})
			}
		}

		log.Info().
			Str("game_id", gameID.String()).
			Str("state", string(g.State)).
			Int("open_photos", len(unresolved)).
			Msg("restored game timers")
	}
	return nil
}

// ReEnablePlayer lifts an out-of-zone lockout. Runs on the scheduler when
// the penalty expires.
func (a *App) ReEnablePlayer(ctx context.Context, playerID uuid.UUID) error {
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.DisabledUntil == nil {
		return nil
	}
	if err := a.store.SetPlayerDisabledUntil(ctx, playerID, nil); err != nil {
		return fmt.Errorf("re-enable player: %w", err)
	}

	a.emit(ctx, events.TypePlayerReEnabled, p.GameID, events.PlayerReEnabledPayload{
		PlayerID: p.ID.String(),
	})

	log.Info().Str("player_id", playerID.String()).Msg("player re-enabled")
	return nil
}
