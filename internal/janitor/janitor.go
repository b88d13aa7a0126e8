package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
)

// Config holds the cleanup cadence and retention windows.
type Config struct {
	// Interval is how often the sweeps run.
	Interval time.Duration

	// CompletedRetention is how long finished games stay queryable before
	// their rows are purged.
	CompletedRetention time.Duration

	// UnverifiedGrace is how long a player may sit unverified before the
	// seat is reclaimed.
	UnverifiedGrace time.Duration

	// LobbyTTL is how long a lobby may sit without starting before it is
	// retired.
	LobbyTTL time.Duration
}

// DefaultConfig returns the production cleanup settings.
func DefaultConfig() Config {
	return Config{
		Interval:           10 * time.Minute,
		CompletedRetention: 24 * time.Hour,
		UnverifiedGrace:    30 * time.Minute,
		LobbyTTL:           6 * time.Hour,
	}
}

// Janitor periodically purges expired rows. It drops completed games past
// retention, reclaims seats from players who never verified, and retires
// lobbies that never started.
type Janitor struct {
	store     game.Store
	clock     clockwork.Clock
	cfg       Config
	scheduler gocron.Scheduler
}

// New creates a Janitor.
func New(store game.Store, clock clockwork.Clock, cfg Config) (*Janitor, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Janitor{store: store, clock: clock, cfg: cfg, scheduler: sched}, nil
}

// Start registers the sweep jobs and begins running them.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.cfg.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			j.sweep(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	j.scheduler.Start()
	log.Info().
		Dur("interval", j.cfg.Interval).
		Dur("completed_retention", j.cfg.CompletedRetention).
		Dur("unverified_grace", j.cfg.UnverifiedGrace).
		Dur("lobby_ttl", j.cfg.LobbyTTL).
		Msg("janitor started")
	return nil
}

// Stop shuts the sweep scheduler down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweep(ctx context.Context) {
	now := j.clock.Now()

	purged, err := j.store.PurgeGamesCompletedBefore(ctx, now.Add(-j.cfg.CompletedRetention))
	if err != nil {
		log.Error().Err(err).Msg("failed to purge completed games")
	} else if purged > 0 {
		log.Info().Int("games", purged).Msg("purged completed games")
	}

	removed, err := j.store.DeleteUnverifiedJoinedBefore(ctx, now.Add(-j.cfg.UnverifiedGrace))
	if err != nil {
		log.Error().Err(err).Msg("failed to remove stale unverified players")
	} else if removed > 0 {
		log.Info().Int("players", removed).Msg("removed stale unverified players")
	}

	expired, err := j.store.DeleteLobbiesCreatedBefore(ctx, now.Add(-j.cfg.LobbyTTL))
	if err != nil {
		log.Error().Err(err).Msg("failed to expire stale lobbies")
	} else if expired > 0 {
		log.Info().Int("games", expired).Msg("expired stale lobbies")
	}
}
