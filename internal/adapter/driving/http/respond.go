package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrNotImage),
		errors.Is(err, domain.ErrSelfChat),
		errors.Is(err, domain.ErrInvalidSDP),
		errors.Is(err, domain.ErrNoOffer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrCallBusy),
		errors.Is(err, domain.ErrStaleOffer),
		errors.Is(err, domain.ErrAnswerExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrCallEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

const maxJSONBody = 1 << 20

var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
