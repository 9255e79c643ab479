package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/user/mafia-suspicion/internal/game"
)

var errInvalidRequest = errors.New("invalid request")

// statusFor maps game validation errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNotHost),
		errors.Is(err, game.ErrNotYourBot),
		errors.Is(err, game.ErrHostCannotLeave):
		return http.StatusForbidden
	case errors.Is(err, game.ErrLobbyExists),
		errors.Is(err, game.ErrGameAlreadyStarted),
		errors.Is(err, game.ErrAlreadyJoined),
		errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrWrongPhase),
		errors.Is(err, game.ErrNotStarted),
		errors.Is(err, game.ErrBotLimit):
		return http.StatusConflict
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, game.ErrNotEnoughPlayers),
		errors.Is(err, game.ErrUnknownPlayer),
		errors.Is(err, game.ErrUnknownTarget),
		errors.Is(err, game.ErrPlayerDead),
		errors.Is(err, game.ErrTargetDead),
		errors.Is(err, game.ErrSelfTarget),
		errors.Is(err, game.ErrTeammateTarget),
		errors.Is(err, game.ErrNoNightAction),
		errors.Is(err, game.ErrInvalidAction),
		errors.Is(err, game.ErrInvalidBotCount),
		errors.Is(err, game.ErrInvalidBotMode),
		errors.Is(err, game.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
