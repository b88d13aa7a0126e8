package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// playerHeader carries the caller's player ID on authenticated routes.
const playerHeader = "X-Player-ID"

// Handler is the REST surface of the game.
type Handler struct {
	app *game.App

	// publicURL is the externally reachable base URL, used to build the
	// join links encoded in QR codes.
	publicURL string
}

// NewHandler creates the REST Handler.
func NewHandler(app *game.App, publicURL string) *Handler {
	return &Handler{app: app, publicURL: strings.TrimRight(publicURL, "/")}
}

// Router builds the API route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/games", h.createGame)
		r.Get("/games", h.listJoinableGames)
		r.Post("/games/join", h.joinGame)
		r.Post("/games/begin", h.beginGame)
		r.Get("/games/status", h.gameStatus)
		r.Get("/games/{code}/qr", h.gameQR)

		r.Post("/players/verify", h.verifyPlayer)
		r.Post("/players/resend", h.resendCode)
		r.Post("/players/leave", h.leaveGame)
		r.Post("/players/use-ammo", h.useAmmo)
		r.Get("/players/ammo", h.ammoCount)
		r.Post("/players/remove", h.removePlayer)

		r.Post("/photos", h.uploadPhoto)
		r.Post("/photos/{id}/votes", h.castVote)

		r.Get("/notifications", h.listNotifications)
		r.Post("/notifications/read", h.markNotificationsRead)
	})
	return r
}

type response struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Data: data}); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, apiErr := httpError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Error: &apiErr}); err != nil {
		log.Warn().Err(err).Msg("failed to write error response")
	}
}

// writeOutsideZone reports a shot fired from outside the zone. The round
// was still spent and the lockout applied, so the result ships alongside
// the error code clients key off.
func writeOutsideZone(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	apiErr := &apiError{Code: codePlayerOutsideZone, Message: "player is outside the play zone"}
	if err := json.NewEncoder(w).Encode(response{Data: data, Error: apiErr}); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(game.ErrValidation, err)
	}
	return nil
}

// callerID reads the authenticated player from the request header.
func callerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(playerHeader))
	if err != nil {
		return uuid.Nil, errors.Join(game.ErrValidation, errors.New("missing or invalid "+playerHeader+" header"))
	}
	return id, nil
}

// createGameRequest is the wire form of game creation; durations arrive in
// minutes, the way the host picks them in the UI.
type createGameRequest struct {
	Nickname string `json:"nickname"`
	Contact  string `json:"contact"`

	Mode        models.GameMode             `json:"mode"`
	Elimination *models.EliminationSettings `json:"elimination,omitempty"`

	TimeLimitMinutes  int  `json:"time_limit_minutes"`
	StartDelayMinutes int  `json:"start_delay_minutes"`
	AmmoLimit         int  `json:"ammo_limit"`
	AmmoRefillMinutes int  `json:"ammo_refill_minutes"`
	JoinableAnytime   bool `json:"joinable_anytime"`
}

type playerResponse struct {
	Game   *models.Game   `json:"game"`
	Player *models.Player `json:"player"`
}

func (h *Handler) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, host, err := h.app.CreateGame(r.Context(), game.CreateGameRequest{
		Nickname:           req.Nickname,
		Contact:            req.Contact,
		Mode:               req.Mode,
		Elimination:        req.Elimination,
		TimeLimit:          time.Duration(req.TimeLimitMinutes) * time.Minute,
		StartDelay:         time.Duration(req.StartDelayMinutes) * time.Minute,
		AmmoLimit:          req.AmmoLimit,
		AmmoRefillInterval: time.Duration(req.AmmoRefillMinutes) * time.Minute,
		JoinableAnytime:    req.JoinableAnytime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerResponse{Game: g, Player: host})
}

func (h *Handler) listJoinableGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.app.ListJoinableGames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	var req game.JoinGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, p, err := h.app.JoinGame(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerResponse{Game: g, Player: p})
}

func (h *Handler) beginGame(w http.ResponseWriter, r *http.Request) {
	hostID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := h.app.BeginGame(r.Context(), hostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) gameStatus(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := h.app.GameStatus(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) verifyPlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.app.VerifyPlayer(r.Context(), playerID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) resendCode(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.ResendCode(r.Context(), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) leaveGame(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.LeaveGame(r.Context(), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type useAmmoRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) useAmmo(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req useAmmoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.app.UseAmmo(r.Context(), playerID, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.InZone {
		writeOutsideZone(w, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type removePlayerRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
}

func (h *Handler) removePlayer(w http.ResponseWriter, r *http.Request) {
	hostID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req removePlayerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.RemoveUnverifiedPlayer(r.Context(), hostID, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type uploadPhotoRequest struct {
	PhotoOfID uuid.UUID `json:"photo_of_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ImageURL  string    `json:"image_url"`
}

func (h *Handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req uploadPhotoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.app.UploadPhoto(r.Context(), game.UploadPhotoRequest{
		TakenByID: playerID,
		PhotoOfID: req.PhotoOfID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.Ammo != nil && !resp.Ammo.InZone {
		writeOutsideZone(w, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type castVoteRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	photoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.Join(game.ErrValidation, errors.New("invalid photo id")))
		return
	}
	var req castVoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.CastVote(r.Context(), playerID, photoID, req.Approve); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type ammoResponse struct {
	Ammo int `json:"ammo"`
}

func (h *Handler) ammoCount(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.app.Player(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ammoResponse{Ammo: p.Ammo})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	notes, err := h.app.Notifications(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	playerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.MarkNotificationsRead(r.Context(), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
