package api

import (
	"errors"
	"net/http"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
)

// Numeric error codes surfaced to clients alongside the HTTP status. The
// numbering is part of the client contract and never changes.
const (
	codeItemAlreadyExists = 4
	codeDataInvalid       = 5
	codeItemDoesNotExist  = 6
	codeCannotPerform     = 7
	codeGameStateInvalid  = 9
	codePlayerInvalid     = 11
	codePlayerEliminated  = 100
	codePlayerOutsideZone = 101
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpError maps a domain error to an HTTP status and client error code.
func httpError(err error) (int, apiError) {
	switch {
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest, apiError{Code: codeDataInvalid, Message: err.Error()}
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound, apiError{Code: codeItemDoesNotExist, Message: err.Error()}
	case errors.Is(err, game.ErrInvalidState), errors.Is(err, game.ErrAlreadyResolved):
		return http.StatusConflict, apiError{Code: codeGameStateInvalid, Message: err.Error()}
	case errors.Is(err, game.ErrNotHost), errors.Is(err, game.ErrNotEligible),
		errors.Is(err, game.ErrNotEnoughPlayers), errors.Is(err, game.ErrPlayerLeft),
		errors.Is(err, game.ErrPlayerDisabled), errors.Is(err, game.ErrNoAmmo):
		return http.StatusForbidden, apiError{Code: codeCannotPerform, Message: err.Error()}
	case errors.Is(err, game.ErrPlayerEliminated):
		return http.StatusForbidden, apiError{Code: codePlayerEliminated, Message: err.Error()}
	case errors.Is(err, game.ErrNicknameTaken), errors.Is(err, game.ErrDuplicateVote):
		return http.StatusConflict, apiError{Code: codeItemAlreadyExists, Message: err.Error()}
	case errors.Is(err, game.ErrGameFull):
		return http.StatusConflict, apiError{Code: codeCannotPerform, Message: err.Error()}
	case errors.Is(err, game.ErrVerificationFailed), errors.Is(err, game.ErrPlayerNotVerified):
		return http.StatusForbidden, apiError{Code: codePlayerInvalid, Message: err.Error()}
	default:
		return http.StatusInternalServerError, apiError{Code: 0, Message: "internal error"}
	}
}
