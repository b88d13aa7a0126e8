package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config tunes the polling relay.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker is the polling half of the relay: it sweeps unsent rows on an
// interval, which catches anything the LISTEN/NOTIFY path dropped.
type Worker struct {
	db        *sql.DB
	publisher Publisher
	config    Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a relay worker.
func NewWorker(db *sql.DB, publisher Publisher, cfg Config) *Worker {
	return &Worker{
		db:        db,
		publisher: publisher,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

// Stop halts the loop and waits for the in-flight sweep.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on start.
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin outbox transaction")
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	batch, err := fetchUnsentTx(ctx, tx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch unsent events")
		return
	}
	if len(batch) == 0 {
		return
	}

	log.Debug().Int("count", len(batch)).Msg("processing outbox events")

	var sent []uuid.UUID
	for _, event := range batch {
		if err := w.publishWithRetry(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to publish event")
			continue
		}
		sent = append(sent, event.ID)
	}

	if err := markSentTx(ctx, tx, sent); err != nil {
		log.Error().Err(err).Msg("failed to mark events as sent")
		return
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("failed to commit outbox transaction")
		return
	}
	committed = true

	log.Info().
		Int("total", len(batch)).
		Int("sent", len(sent)).
		Msg("processed outbox events")
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := w.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
