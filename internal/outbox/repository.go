package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
)

// Repository reads and writes the game_outbox table over database/sql. It
// implements the game core's EventSink, so emitting an event IS inserting
// an outbox row; an AFTER INSERT trigger raises the NOTIFY that wakes the
// listener.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over an existing connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Emit stores an envelope as an unsent outbox row.
func (r *Repository) Emit(ctx context.Context, env events.Envelope) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_outbox (id, game_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		env.EventID, env.GameID, env.EventType, []byte(env.Payload), env.Timestamp)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

const eventColumns = `id, game_id, event_type, payload, created_at, sent_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var (
		e       Event
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.GameID, &e.EventType, &payload, &e.CreatedAt, &sentAt); err != nil {
		return Event{}, err
	}
	if payload.Valid {
		e.Payload = payload.RawMessage
	}
	if sentAt.Valid {
		t := sentAt.Time
		e.SentAt = &t
	}
	return e, nil
}

// FetchByID loads a single outbox row.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM game_outbox WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("outbox event %s not found", id)
	}
	if err != nil {
		return Event{}, fmt.Errorf("fetch outbox event: %w", err)
	}
	return e, nil
}

// FetchUnsent returns up to limit unsent rows, oldest first.
func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM game_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent stamps rows as relayed.
func (r *Repository) MarkSent(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_outbox SET sent_at = now() WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// fetchUnsentTx is the worker's variant of FetchUnsent: it row-locks what it
// reads so concurrent relays skip each other's batches.
func fetchUnsentTx(ctx context.Context, tx *sql.Tx, limit int) ([]Event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM game_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func markSentTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE game_outbox SET sent_at = now() WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}
