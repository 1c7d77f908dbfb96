package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Raffle lifecycle states.
const (
	RaffleStateDraft     = "DRAFT"
	RaffleStateActive    = "ACTIVE"
	RaffleStatePaused    = "PAUSED"
	RaffleStateFinished  = "FINISHED"
	RaffleStateCancelled = "CANCELLED"
)

// Bounds for the ticket pool of a single raffle. Numbers run 0..TotalTickets-1.
const (
	MinRaffleTickets = 1
	MaxRaffleTickets = 10000
)

type Raffle struct {
	bun.BaseModel `bun:"table:raffles"`

	RaffleID     string    `bun:"raffle_id,pk" json:"raffle_id"`
	Name         string    `bun:"name,notnull" json:"name"`
	TotalTickets int       `bun:"total_tickets,notnull" json:"total_tickets"`
	UnitPrice    float64   `bun:"unit_price,notnull" json:"unit_price"`
	MaxPerPerson int       `bun:"max_per_person" json:"max_per_person"`
	HoldMinutes  int       `bun:"hold_minutes,notnull" json:"hold_minutes"`
	State        string    `bun:"state,notnull" json:"state"`
	DrawDate     time.Time `bun:"draw_date,nullzero" json:"draw_date,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

// NumberInRange reports whether n is a valid ticket number for this raffle.
func (r *Raffle) NumberInRange(n int) bool {
	return n >= 0 && n < r.TotalTickets
}

// HoldDuration is the reservation window granted to a new purchase.
func (r *Raffle) HoldDuration() time.Duration {
	return time.Duration(r.HoldMinutes) * time.Minute
}
