package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
	"github.com/sheridanzzz/CamTag-WebApp/internal/scheduler"
)

type nullSink struct{}

func (nullSink) Emit(context.Context, events.Envelope) error { return nil }

type nullTimers struct{}

func (nullTimers) Schedule(string, time.Time, scheduler.Job) {}
func (nullTimers) Cancel(string)                             {}

type recordingCodes struct {
	mu    sync.Mutex
	codes map[uuid.UUID]string
}

func (c *recordingCodes) SendCode(_ context.Context, p *models.Player, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[uuid.UUID]string)
	}
	c.codes[p.ID] = code
	return nil
}

func (c *recordingCodes) codeFor(playerID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[playerID]
}

type testServer struct {
	router chi.Router
	codes  *recordingCodes
	app    *game.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	codes := &recordingCodes{}
	app := game.NewApp(game.NewMemStore(), nullSink{}, nullTimers{}, codes, clockwork.NewFakeClock())
	h := NewHandler(app, "https://camtag.example.com")
	return &testServer{router: h.Router(), codes: codes, app: app}
}

func (s *testServer) do(t *testing.T, method, path string, playerID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if playerID != "" {
		req.Header.Set(playerHeader, playerID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var resp struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func createGameBody(nickname string) map[string]any {
	return map[string]any{
		"nickname":            nickname,
		"contact":             nickname + "@example.com",
		"mode":                "STANDARD",
		"time_limit_minutes":  60,
		"start_delay_minutes": 2,
		"ammo_limit":          3,
		"ammo_refill_minutes": 10,
	}
}

func (s *testServer) createGame(t *testing.T) playerResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/games", "", createGameBody("alice"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create game status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeData[playerResponse](t, rec)
}

func (s *testServer) joinAndVerify(t *testing.T, code, nickname string) *models.Player {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/games/join", "", map[string]any{
		"code":     code,
		"nickname": nickname,
		"contact":  nickname + "@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body.String())
	}
	joined := decodeData[playerResponse](t, rec)
	s.verify(t, joined.Player)
	return joined.Player
}

func (s *testServer) verify(t *testing.T, p *models.Player) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/players/verify", p.ID.String(), map[string]any{
		"code": s.codes.codeFor(p.ID),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateGame_ReturnsGameAndHost(t *testing.T) {
	s := newTestServer(t)

	created := s.createGame(t)
	if len(created.Game.Code) != 6 {
		t.Errorf("game code = %q, want 6 characters", created.Game.Code)
	}
	if !created.Player.IsHost {
		t.Error("creating player is not the host")
	}
	if created.Player.Verified {
		t.Error("host starts verified, want unverified")
	}
	if created.Game.State != models.GameStateLobby {
		t.Errorf("game state = %s, want LOBBY", created.Game.State)
	}
}

func TestCreateGame_RejectsBadSettings(t *testing.T) {
	s := newTestServer(t)

	body := createGameBody("alice")
	body["ammo_limit"] = 25
	rec := s.do(t, http.MethodPost, "/api/games", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != codeDataInvalid {
		t.Errorf("error code = %d, want %d", apiErr.Code, codeDataInvalid)
	}
}

func TestBeginGame_HostOnly(t *testing.T) {
	s := newTestServer(t)
	created := s.createGame(t)
	s.verify(t, created.Player)
	other := s.joinAndVerify(t, created.Game.Code, "bob")

	rec := s.do(t, http.MethodPost, "/api/games/begin", other.ID.String(), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-host begin status = %d, want 403", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != codeCannotPerform {
		t.Errorf("error code = %d, want %d", apiErr.Code, codeCannotPerform)
	}

	rec = s.do(t, http.MethodPost, "/api/games/begin", created.Player.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("host begin status = %d, body %s", rec.Code, rec.Body.String())
	}
	g := decodeData[*models.Game](t, rec)
	if g.State != models.GameStateStarting {
		t.Errorf("game state after begin = %s, want STARTING", g.State)
	}
}

func TestVerifyPlayer_WrongCode(t *testing.T) {
	s := newTestServer(t)
	created := s.createGame(t)

	rec := s.do(t, http.MethodPost, "/api/players/verify", created.Player.ID.String(), map[string]any{
		"code": "000000x",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != codePlayerInvalid {
		t.Errorf("error code = %d, want %d", apiErr.Code, codePlayerInvalid)
	}
}

func TestGameStatus_RequiresPlayerHeader(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/games/status", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGameStatus_UnknownPlayerIs404(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/games/status", uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != codeItemDoesNotExist {
		t.Errorf("error code = %d, want %d", apiErr.Code, codeItemDoesNotExist)
	}
}

func TestCastVote_InvalidPhotoID(t *testing.T) {
	s := newTestServer(t)
	created := s.createGame(t)

	rec := s.do(t, http.MethodPost, "/api/photos/not-a-uuid/votes", created.Player.ID.String(), map[string]any{
		"approve": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUseAmmo_OutsideZoneShipsResultWithErrorCode(t *testing.T) {
	s := newTestServer(t)

	body := createGameBody("alice")
	body["mode"] = "ELIMINATION"
	body["elimination"] = map[string]any{
		"latitude":         -32.893,
		"longitude":        151.705,
		"initial_radius_m": 1000,
	}
	rec := s.do(t, http.MethodPost, "/api/games", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create game status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeData[playerResponse](t, rec)
	s.verify(t, created.Player)
	s.joinAndVerify(t, created.Game.Code, "bob")
	s.joinAndVerify(t, created.Game.Code, "carol")

	rec = s.do(t, http.MethodPost, "/api/games/begin", created.Player.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("begin status = %d, body %s", rec.Code, rec.Body.String())
	}
	if err := s.app.ActivateGame(context.Background(), created.Game.ID); err != nil {
		t.Fatalf("ActivateGame: %v", err)
	}

	// Fire from roughly a degree of latitude outside a 1000m zone. The
	// round is spent, so the result and the error code travel together.
	rec = s.do(t, http.MethodPost, "/api/players/use-ammo", created.Player.ID.String(), map[string]any{
		"latitude":  -31.893,
		"longitude": 151.705,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if apiErr := decodeError(t, rec); apiErr.Code != codePlayerOutsideZone {
		t.Errorf("error code = %d, want %d", apiErr.Code, codePlayerOutsideZone)
	}
	result := decodeData[*game.AmmoResult](t, rec)
	if result == nil || result.InZone {
		t.Fatalf("result = %+v, want an out-of-zone ammo result", result)
	}
	if result.Ammo != 2 {
		t.Errorf("ammo = %d, want the round spent", result.Ammo)
	}
}

func TestListJoinableGames(t *testing.T) {
	s := newTestServer(t)
	created := s.createGame(t)

	rec := s.do(t, http.MethodGet, "/api/games", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	games := decodeData[[]*models.Game](t, rec)
	if len(games) != 1 || games[0].Code != created.Game.Code {
		t.Errorf("joinable games = %+v, want the one lobby", games)
	}
}

func TestGameQR_ServesPNG(t *testing.T) {
	s := newTestServer(t)
	created := s.createGame(t)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/games/%s/qr", created.Game.Code), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("QR response body is empty")
	}

	rec = s.do(t, http.MethodGet, "/api/games/zzzzzz/qr", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown code QR status = %d, want 404", rec.Code)
	}
}
