package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// PostgresStore is the production Store backed by pgx. Compare-and-set
// mutators are single UPDATE statements guarded by a WHERE on the old state,
// so the row lock is the arbiter of every race.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const gameColumns = `id, code, mode, state, zone_lat, zone_lng, zone_radius_m,
	time_limit_ms, start_delay_ms, ammo_limit, ammo_refill_ms, joinable_anytime,
	start_deadline, end_deadline, deleted, created_at, updated_at`

func scanGame(row pgx.Row) (*models.Game, error) {
	var (
		g                       models.Game
		zoneLat, zoneLng, zoneR *float64
		timeLimitMs             int64
		startDelayMs            int64
		refillMs                int64
	)
	err := row.Scan(&g.ID, &g.Code, &g.Mode, &g.State, &zoneLat, &zoneLng, &zoneR,
		&timeLimitMs, &startDelayMs, &g.AmmoLimit, &refillMs, &g.JoinableAnytime,
		&g.StartDeadline, &g.EndDeadline, &g.Deleted, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}
	g.TimeLimit = time.Duration(timeLimitMs) * time.Millisecond
	g.StartDelay = time.Duration(startDelayMs) * time.Millisecond
	g.AmmoRefillInterval = time.Duration(refillMs) * time.Millisecond
	if zoneLat != nil && zoneLng != nil && zoneR != nil {
		g.Elimination = &models.EliminationSettings{Latitude: *zoneLat, Longitude: *zoneLng, InitialRadius: *zoneR}
	}
	return &g, nil
}

func (s *PostgresStore) CreateGame(ctx context.Context, g *models.Game) error {
	var zoneLat, zoneLng, zoneR *float64
	if g.Elimination != nil {
		zoneLat = &g.Elimination.Latitude
		zoneLng = &g.Elimination.Longitude
		zoneR = &g.Elimination.InitialRadius
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, code, mode, state, zone_lat, zone_lng, zone_radius_m,
			time_limit_ms, start_delay_ms, ammo_limit, ammo_refill_ms, joinable_anytime,
			start_deadline, end_deadline, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15, $15)`,
		g.ID, g.Code, g.Mode, g.State, zoneLat, zoneLng, zoneR,
		g.TimeLimit.Milliseconds(), g.StartDelay.Milliseconds(), g.AmmoLimit,
		g.AmmoRefillInterval.Milliseconds(), g.JoinableAnytime,
		g.StartDeadline, g.EndDeadline, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1 AND NOT deleted`, id)
	return scanGame(row)
}

func (s *PostgresStore) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE code = $1 AND NOT deleted
		 ORDER BY created_at DESC LIMIT 1`, code)
	return scanGame(row)
}

func (s *PostgresStore) ListJoinableGames(ctx context.Context) ([]*models.Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE NOT deleted
		  AND (state = 'LOBBY' OR (joinable_anytime AND state <> 'COMPLETED'))
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list joinable games: %w", err)
	}
	defer rows.Close()

	var out []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUnfinishedGames(ctx context.Context) ([]*models.Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE NOT deleted AND state IN ('STARTING', 'ACTIVE')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished games: %w", err)
	}
	defer rows.Close()

	var out []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM games
			WHERE code = $1 AND NOT deleted AND state <> 'COMPLETED'
		)`, code).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) SetGameState(ctx context.Context, gameID uuid.UUID, from, to models.GameState) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games SET state = $3, updated_at = now()
		WHERE id = $1 AND state = $2 AND NOT deleted`,
		gameID, from, to)
	if err != nil {
		return false, fmt.Errorf("set game state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetGameDeadlines(ctx context.Context, gameID uuid.UUID, start, end *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games SET start_deadline = $2, end_deadline = $3, updated_at = now()
		WHERE id = $1 AND NOT deleted`,
		gameID, start, end)
	if err != nil {
		return fmt.Errorf("set deadlines: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteGame(ctx context.Context, gameID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games SET state = 'COMPLETED', updated_at = now()
		WHERE id = $1 AND state <> 'COMPLETED' AND NOT deleted`,
		gameID)
	if err != nil {
		return false, fmt.Errorf("complete game: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE games SET deleted = true, updated_at = now() WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeGamesCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM games WHERE state = 'COMPLETED' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge games: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE games SET deleted = true, updated_at = now()
		 WHERE state = 'LOBBY' AND NOT deleted AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire lobbies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const playerColumns = `id, game_id, nickname, contact, is_host, verified,
	verification_code, connection_id, ammo, eliminated, disabled_until,
	left_game, deleted, created_at`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.GameID, &p.Nickname, &p.Contact, &p.IsHost, &p.Verified,
		&p.VerificationCode, &p.ConnectionID, &p.Ammo, &p.Eliminated, &p.DisabledUntil,
		&p.LeftGame, &p.Deleted, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, p *models.Player) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, game_id, nickname, contact, is_host, verified,
			verification_code, connection_id, ammo, eliminated, disabled_until,
			left_game, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, NULL, false, false, $10)`,
		p.ID, p.GameID, p.Nickname, p.Contact, p.IsHost, p.Verified,
		p.VerificationCode, p.ConnectionID, p.Ammo, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1 AND NOT deleted`, id)
	return scanPlayer(row)
}

func (s *PostgresStore) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players
		 WHERE game_id = $1 AND NOT deleted ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM players
		WHERE game_id = $1 AND verified AND NOT left_game AND NOT deleted AND NOT eliminated`,
		gameID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SetPlayerVerified(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(ctx, playerID, `verified = true`)
}

func (s *PostgresStore) SetPlayerConnection(ctx context.Context, playerID uuid.UUID, connectionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET connection_id = $2 WHERE id = $1 AND NOT deleted`,
		playerID, connectionID)
	if err != nil {
		return fmt.Errorf("set connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetPlayerLeft(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(ctx, playerID, `left_game = true`)
}

func (s *PostgresStore) DeletePlayer(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(ctx, playerID, `deleted = true`)
}

func (s *PostgresStore) updatePlayer(ctx context.Context, playerID uuid.UUID, set string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET `+set+` WHERE id = $1 AND NOT deleted`, playerID)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUnverifiedJoinedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE players SET deleted = true
		WHERE NOT verified AND NOT deleted AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge unverified players: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DecrementAmmo(ctx context.Context, playerID uuid.UUID) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		UPDATE players SET ammo = ammo - 1
		WHERE id = $1 AND ammo > 0 AND NOT deleted
		RETURNING ammo`, playerID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the player is gone or the clip is empty; one more read
		// tells them apart.
		if _, gerr := s.GetPlayer(ctx, playerID); gerr != nil {
			return 0, gerr
		}
		return 0, ErrNoAmmo
	}
	if err != nil {
		return 0, fmt.Errorf("decrement ammo: %w", err)
	}
	return remaining, nil
}

func (s *PostgresStore) ReplenishPlayerAmmo(ctx context.Context, playerID uuid.UUID, limit int) (*AmmoRefill, error) {
	var r AmmoRefill
	err := s.pool.QueryRow(ctx, `
		UPDATE players SET ammo = ammo + 1
		WHERE id = $1 AND ammo < $2
		  AND verified AND NOT left_game AND NOT deleted AND NOT eliminated
		RETURNING id, ammo`, playerID, limit).Scan(&r.PlayerID, &r.Ammo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("replenish ammo: %w", err)
	}
	r.WasEmpty = r.Ammo == 1
	return &r, nil
}

func (s *PostgresStore) SetPlayerDisabledUntil(ctx context.Context, playerID uuid.UUID, until *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET disabled_until = $2 WHERE id = $1 AND NOT deleted`,
		playerID, until)
	if err != nil {
		return fmt.Errorf("set disabled until: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) EliminatePlayer(ctx context.Context, playerID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE players SET eliminated = true
		WHERE id = $1 AND NOT eliminated AND NOT deleted`, playerID)
	if err != nil {
		return false, fmt.Errorf("eliminate player: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreatePhoto(ctx context.Context, photo *models.Photo, votes []*models.Vote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO photos (id, game_id, taken_by_id, photo_of_id, latitude, longitude,
			image_url, voting_deadline, resolved, successful, deactivated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, false, false, $9)`,
		photo.ID, photo.GameID, photo.TakenByID, photo.PhotoOfID,
		photo.Latitude, photo.Longitude, photo.ImageURL, photo.VotingDeadline, photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	for _, v := range votes {
		_, err = tx.Exec(ctx, `
			INSERT INTO votes (id, photo_id, player_id, decision, cast_at)
			VALUES ($1, $2, $3, $4, NULL)`,
			v.ID, v.PhotoID, v.PlayerID, v.Decision)
		if err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var ph models.Photo
	err := row.Scan(&ph.ID, &ph.GameID, &ph.TakenByID, &ph.PhotoOfID,
		&ph.Latitude, &ph.Longitude, &ph.ImageURL, &ph.VotingDeadline,
		&ph.Resolved, &ph.Successful, &ph.Deactivated, &ph.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return &ph, nil
}

const photoColumns = `id, game_id, taken_by_id, photo_of_id, latitude, longitude,
	image_url, voting_deadline, resolved, successful, deactivated, created_at`

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, id)
	return scanPhoto(row)
}

func (s *PostgresStore) ListUnresolvedPhotos(ctx context.Context, gameID uuid.UUID) ([]*models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos
		 WHERE game_id = $1 AND NOT resolved AND NOT deactivated
		 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved photos: %w", err)
	}
	defer rows.Close()

	var out []*models.Photo
	for rows.Next() {
		ph, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkPhotoResolved(ctx context.Context, photoID uuid.UUID, successful bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE photos SET resolved = true, successful = $2
		WHERE id = $1 AND NOT resolved AND NOT deactivated`,
		photoID, successful)
	if err != nil {
		return false, fmt.Errorf("mark photo resolved: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeactivatePhoto(ctx context.Context, photoID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE photos SET deactivated = true
		WHERE id = $1 AND NOT resolved AND NOT deactivated`, photoID)
	if err != nil {
		return false, fmt.Errorf("deactivate photo: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetVotes(ctx context.Context, photoID uuid.UUID) ([]*models.Vote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, photo_id, player_id, decision, cast_at
		 FROM votes WHERE photo_id = $1 ORDER BY id`, photoID)
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}
	defer rows.Close()

	var out []*models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.PhotoID, &v.PlayerID, &v.Decision, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CastVote(ctx context.Context, photoID, playerID uuid.UUID, decision models.VoteDecision, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE votes SET decision = $3, cast_at = $4
		WHERE photo_id = $1 AND player_id = $2 AND decision = 'PENDING'`,
		photoID, playerID, decision, at)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE photo_id = $1 AND player_id = $2)`,
		photoID, playerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check vote: %w", err)
	}
	if exists {
		return ErrDuplicateVote
	}
	return ErrNotEligible
}

func (s *PostgresStore) DeletePendingVotesByPlayer(ctx context.Context, gameID, playerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM votes v
		USING photos p
		WHERE v.photo_id = p.id
		  AND p.game_id = $1 AND v.player_id = $2
		  AND v.decision = 'PENDING' AND NOT p.resolved AND NOT p.deactivated
		RETURNING v.photo_id`, gameID, playerID)
	if err != nil {
		return nil, fmt.Errorf("delete pending votes: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var affected []uuid.UUID
	for rows.Next() {
		var photoID uuid.UUID
		if err := rows.Scan(&photoID); err != nil {
			return nil, fmt.Errorf("scan photo id: %w", err)
		}
		if !seen[photoID] {
			seen[photoID] = true
			affected = append(affected, photoID)
		}
	}
	return affected, rows.Err()
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, game_id, player_id, text, read, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`,
		n.ID, n.GameID, n.PlayerID, n.Text, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, playerID uuid.UUID) ([]*models.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, game_id, player_id, text, read, created_at
		FROM notifications WHERE player_id = $1 ORDER BY created_at`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.GameID, &n.PlayerID, &n.Text, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkNotificationsRead(ctx context.Context, playerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE player_id = $1 AND NOT read`, playerID)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
