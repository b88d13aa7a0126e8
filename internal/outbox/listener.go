package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ListenerConfig tunes the LISTEN/NOTIFY relay.
type ListenerConfig struct {
	DatabaseURL      string
	NotifyChannel    string
	FallbackInterval time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int
}

// DefaultListenerConfig returns the listener defaults.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "game_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Listener is the low-latency half of the relay: the outbox trigger raises a
// NOTIFY per insert and the listener publishes the row as soon as it hears
// it. A fallback sweep covers notifications lost to reconnects.
type Listener struct {
	repo      *Repository
	listener  *pq.Listener
	publisher Publisher
	cfg       ListenerConfig
}

// NewListener opens the pq listener and subscribes to the outbox channel.
func NewListener(repo *Repository, publisher Publisher, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for outbox notifications")

	return &Listener{
		repo:      repo,
		listener:  l,
		publisher: publisher,
		cfg:       cfg,
	}, nil
}

// Start runs the listener loop until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("outbox listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// Connection was lost and re-established; the fallback
				// sweep picks up anything missed in between.
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the underlying pq listener.
func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification publishes the single row named in a NOTIFY payload.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.repo.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	if event.SentAt != nil {
		return nil
	}

	if err := l.publishWithRetry(ctx, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if err := l.repo.MarkSent(ctx, id); err != nil {
		return err
	}

	log.Debug().Str("event_id", id.String()).Msg("published notified event")
	return nil
}

func (l *Listener) processUnsent(ctx context.Context) error {
	unsent, err := l.repo.FetchUnsent(ctx, l.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, event := range unsent {
		if err := l.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			continue
		}
		if err := l.repo.MarkSent(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark event as sent")
		}
	}
	return nil
}

func (l *Listener) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
