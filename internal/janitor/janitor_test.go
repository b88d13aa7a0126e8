package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

func TestSweep_PurgesExpiredRows(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := game.NewMemStore()

	j, err := New(store, clock, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A game completed two days ago is past retention; a fresh one is not.
	stale := &models.Game{
		ID:        uuid.New(),
		Code:      models.GenerateGameCode(),
		Mode:      models.GameModeStandard,
		State:     models.GameStateCompleted,
		UpdatedAt: clock.Now().Add(-48 * time.Hour),
		CreatedAt: clock.Now().Add(-49 * time.Hour),
	}
	fresh := &models.Game{
		ID:        uuid.New(),
		Code:      models.GenerateGameCode(),
		Mode:      models.GameModeStandard,
		State:     models.GameStateLobby,
		UpdatedAt: clock.Now(),
		CreatedAt: clock.Now(),
	}
	// A lobby that never started within the TTL gets retired.
	abandoned := &models.Game{
		ID:        uuid.New(),
		Code:      models.GenerateGameCode(),
		Mode:      models.GameModeStandard,
		State:     models.GameStateLobby,
		UpdatedAt: clock.Now().Add(-8 * time.Hour),
		CreatedAt: clock.Now().Add(-8 * time.Hour),
	}
	for _, g := range []*models.Game{stale, fresh, abandoned} {
		if err := store.CreateGame(ctx, g); err != nil {
			t.Fatalf("CreateGame: %v", err)
		}
	}

	// An unverified player past the grace window gets reclaimed; a verified
	// one of the same age does not.
	old := clock.Now().Add(-time.Hour)
	ghost := &models.Player{ID: uuid.New(), GameID: fresh.ID, Nickname: "ghost", CreatedAt: old}
	keeper := &models.Player{ID: uuid.New(), GameID: fresh.ID, Nickname: "keeper", Verified: true, CreatedAt: old}
	for _, p := range []*models.Player{ghost, keeper} {
		if err := store.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("CreatePlayer: %v", err)
		}
	}

	j.sweep(ctx)

	if _, err := store.GetGame(ctx, stale.ID); err == nil {
		t.Error("stale completed game survived the sweep")
	}
	if _, err := store.GetGame(ctx, fresh.ID); err != nil {
		t.Errorf("fresh game was purged: %v", err)
	}
	if _, err := store.GetPlayer(ctx, ghost.ID); err == nil {
		t.Error("stale unverified player survived the sweep")
	}
	if _, err := store.GetPlayer(ctx, keeper.ID); err != nil {
		t.Errorf("verified player was purged: %v", err)
	}
	if _, err := store.GetGame(ctx, abandoned.ID); err == nil {
		t.Error("abandoned lobby survived the sweep")
	}
}
