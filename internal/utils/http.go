package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-raffle/internal/models"
)

// HTTPStatus maps the domain error taxonomy onto HTTP status codes.
func HTTPStatus(err error) int {
	var validationErr *models.ValidationError
	var conflictErr *models.ConflictError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRaffleNotActive),
		errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrReservationExpired),
		errors.Is(err, models.ErrNoSoldTickets),
		errors.Is(err, models.ErrAlreadyDrawn):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard error envelope. Conflicts carry the
// offending ticket numbers so the client can offer alternatives at once.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := HTTPStatus(err)

	response := ErrorResponse(message, err.Error())

	var conflictErr *models.ConflictError
	if errors.As(err, &conflictErr) {
		numbers := make([]string, len(conflictErr.Numbers))
		for i, n := range conflictErr.Numbers {
			numbers[i] = models.DisplayNumber(n)
		}
		response.Data = map[string]interface{}{"conflicting_numbers": numbers}
	}

	WriteJSON(w, status, response)
}
