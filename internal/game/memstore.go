package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// MemStore is an in-memory Store for dev mode and tests. All methods copy on
// the way in and out so callers never share structs with the store.
type MemStore struct {
	mu      sync.RWMutex
	games   map[uuid.UUID]*models.Game
	players map[uuid.UUID]*models.Player
	photos  map[uuid.UUID]*models.Photo
	votes   map[uuid.UUID]*models.Vote
	notes   map[uuid.UUID]*models.Notification
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		games:   make(map[uuid.UUID]*models.Game),
		players: make(map[uuid.UUID]*models.Player),
		photos:  make(map[uuid.UUID]*models.Photo),
		votes:   make(map[uuid.UUID]*models.Vote),
		notes:   make(map[uuid.UUID]*models.Notification),
	}
}

var _ Store = (*MemStore)(nil)

func copyGame(g *models.Game) *models.Game {
	cp := *g
	if g.Elimination != nil {
		e := *g.Elimination
		cp.Elimination = &e
	}
	if g.StartDeadline != nil {
		t := *g.StartDeadline
		cp.StartDeadline = &t
	}
	if g.EndDeadline != nil {
		t := *g.EndDeadline
		cp.EndDeadline = &t
	}
	return &cp
}

func copyPlayer(p *models.Player) *models.Player {
	cp := *p
	if p.DisabledUntil != nil {
		t := *p.DisabledUntil
		cp.DisabledUntil = &t
	}
	return &cp
}

func copyPhoto(ph *models.Photo) *models.Photo {
	cp := *ph
	return &cp
}

func copyVote(v *models.Vote) *models.Vote {
	cp := *v
	if v.CastAt != nil {
		t := *v.CastAt
		cp.CastAt = &t
	}
	return &cp
}

func (s *MemStore) CreateGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = copyGame(g)
	return nil
}

func (s *MemStore) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok || g.Deleted {
		return nil, ErrNotFound
	}
	return copyGame(g), nil
}

func (s *MemStore) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if g.Code == code && !g.Deleted {
			return copyGame(g), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListJoinableGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Game
	for _, g := range s.games {
		if g.Deleted {
			continue
		}
		if g.State == models.GameStateLobby || (g.JoinableAnytime && g.State != models.GameStateCompleted) {
			out = append(out, copyGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) ListUnfinishedGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Game
	for _, g := range s.games {
		if g.Deleted {
			continue
		}
		if g.State == models.GameStateStarting || g.State == models.GameStateActive {
			out = append(out, copyGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if g.Code == code && !g.Deleted && g.State != models.GameStateCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) SetGameState(ctx context.Context, gameID uuid.UUID, from, to models.GameState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.Deleted {
		return false, ErrNotFound
	}
	if g.State != from {
		return false, nil
	}
	g.State = to
	g.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) SetGameDeadlines(ctx context.Context, gameID uuid.UUID, start, end *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.Deleted {
		return ErrNotFound
	}
	g.StartDeadline = start
	g.EndDeadline = end
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) CompleteGame(ctx context.Context, gameID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.Deleted {
		return false, ErrNotFound
	}
	if g.State == models.GameStateCompleted {
		return false, nil
	}
	g.State = models.GameStateCompleted
	g.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	g.Deleted = true
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) PurgeGamesCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, g := range s.games {
		if g.State == models.GameStateCompleted && g.UpdatedAt.Before(cutoff) {
			delete(s.games, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeleteLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.games {
		if g.State == models.GameStateLobby && !g.Deleted && g.CreatedAt.Before(cutoff) {
			g.Deleted = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) CreatePlayer(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = copyPlayer(p)
	return nil
}

func (s *MemStore) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok || p.Deleted {
		return nil, ErrNotFound
	}
	return copyPlayer(p), nil
}

func (s *MemStore) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Player
	for _, p := range s.players {
		if p.GameID == gameID && !p.Deleted {
			out = append(out, copyPlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.players {
		if p.GameID == gameID && p.InGame() && !p.Eliminated {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) SetPlayerVerified(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(playerID, func(p *models.Player) { p.Verified = true })
}

func (s *MemStore) SetPlayerConnection(ctx context.Context, playerID uuid.UUID, connectionID string) error {
	return s.updatePlayer(playerID, func(p *models.Player) { p.ConnectionID = connectionID })
}

func (s *MemStore) SetPlayerLeft(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(playerID, func(p *models.Player) { p.LeftGame = true })
}

func (s *MemStore) DeletePlayer(ctx context.Context, playerID uuid.UUID) error {
	return s.updatePlayer(playerID, func(p *models.Player) { p.Deleted = true })
}

func (s *MemStore) DeleteUnverifiedJoinedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.players {
		if !p.Verified && !p.Deleted && p.CreatedAt.Before(cutoff) {
			p.Deleted = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DecrementAmmo(ctx context.Context, playerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.Deleted {
		return 0, ErrNotFound
	}
	if p.Ammo <= 0 {
		return 0, ErrNoAmmo
	}
	p.Ammo--
	return p.Ammo, nil
}

func (s *MemStore) ReplenishPlayerAmmo(ctx context.Context, playerID uuid.UUID, limit int) (*AmmoRefill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.Deleted {
		return nil, ErrNotFound
	}
	if !p.InGame() || p.Eliminated || p.Ammo >= limit {
		return nil, nil
	}
	wasEmpty := p.Ammo == 0
	p.Ammo++
	return &AmmoRefill{PlayerID: p.ID, Ammo: p.Ammo, WasEmpty: wasEmpty}, nil
}

func (s *MemStore) SetPlayerDisabledUntil(ctx context.Context, playerID uuid.UUID, until *time.Time) error {
	return s.updatePlayer(playerID, func(p *models.Player) {
		if until == nil {
			p.DisabledUntil = nil
			return
		}
		t := *until
		p.DisabledUntil = &t
	})
}

func (s *MemStore) EliminatePlayer(ctx context.Context, playerID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.Deleted {
		return false, ErrNotFound
	}
	if p.Eliminated {
		return false, nil
	}
	p.Eliminated = true
	return true, nil
}

func (s *MemStore) updatePlayer(playerID uuid.UUID, fn func(*models.Player)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.Deleted {
		return ErrNotFound
	}
	fn(p)
	return nil
}

func (s *MemStore) CreatePhoto(ctx context.Context, photo *models.Photo, votes []*models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[photo.ID] = copyPhoto(photo)
	for _, v := range votes {
		s.votes[v.ID] = copyVote(v)
	}
	return nil
}

func (s *MemStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ph, ok := s.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPhoto(ph), nil
}

func (s *MemStore) ListUnresolvedPhotos(ctx context.Context, gameID uuid.UUID) ([]*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Photo
	for _, ph := range s.photos {
		if ph.GameID == gameID && !ph.Resolved && !ph.Deactivated {
			out = append(out, copyPhoto(ph))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) MarkPhotoResolved(ctx context.Context, photoID uuid.UUID, successful bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ph, ok := s.photos[photoID]
	if !ok {
		return false, ErrNotFound
	}
	if ph.Resolved || ph.Deactivated {
		return false, nil
	}
	ph.Resolved = true
	ph.Successful = successful
	return true, nil
}

func (s *MemStore) DeactivatePhoto(ctx context.Context, photoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ph, ok := s.photos[photoID]
	if !ok {
		return false, ErrNotFound
	}
	if ph.Resolved || ph.Deactivated {
		return false, nil
	}
	ph.Deactivated = true
	return true, nil
}

func (s *MemStore) GetVotes(ctx context.Context, photoID uuid.UUID) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vote
	for _, v := range s.votes {
		if v.PhotoID == photoID {
			out = append(out, copyVote(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *MemStore) CastVote(ctx context.Context, photoID, playerID uuid.UUID, decision models.VoteDecision, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.PhotoID != photoID || v.PlayerID != playerID {
			continue
		}
		if v.Decision != models.VotePending {
			return ErrDuplicateVote
		}
		v.Decision = decision
		t := at
		v.CastAt = &t
		return nil
	}
	return ErrNotEligible
}

func (s *MemStore) DeletePendingVotesByPlayer(ctx context.Context, gameID, playerID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var affected []uuid.UUID
	for id, v := range s.votes {
		if v.PlayerID != playerID || v.Decision != models.VotePending {
			continue
		}
		ph, ok := s.photos[v.PhotoID]
		if !ok || ph.GameID != gameID || ph.Resolved || ph.Deactivated {
			continue
		}
		delete(s.votes, id)
		if !seen[v.PhotoID] {
			seen[v.PhotoID] = true
			affected = append(affected, v.PhotoID)
		}
	}
	return affected, nil
}

func (s *MemStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notes[n.ID] = &cp
	return nil
}

func (s *MemStore) ListNotifications(ctx context.Context, playerID uuid.UUID) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notes {
		if n.PlayerID == playerID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) MarkNotificationsRead(ctx context.Context, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.PlayerID == playerID {
			n.Read = true
		}
	}
	return nil
}
