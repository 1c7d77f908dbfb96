package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the reservation, payment, sweeper and draw
// services. Handlers translate them to HTTP status codes.
var (
	ErrNotFound               = errors.New("not found")
	ErrRaffleNotActive        = errors.New("raffle is not active")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrReservationExpired     = errors.New("reservation window has expired, re-select your numbers")
	ErrNoSoldTickets          = errors.New("raffle has no sold tickets")
	ErrAlreadyDrawn           = errors.New("raffle winner already drawn")
)

// ValidationError marks user-correctable input problems.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports exactly which requested numbers were already taken,
// so the client can immediately offer alternatives.
type ConflictError struct {
	Numbers []int
}

func (e *ConflictError) Error() string {
	formatted := make([]string, len(e.Numbers))
	for i, n := range e.Numbers {
		formatted[i] = DisplayNumber(n)
	}
	return "numbers already taken: " + strings.Join(formatted, ", ")
}
