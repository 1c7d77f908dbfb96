package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Ticket states. A ticket row is created lazily: a number with no row is
// logically AVAILABLE, so every state check must treat "no row" and
// "row with state=AVAILABLE" as the same thing.
const (
	TicketStateAvailable      = "AVAILABLE"
	TicketStateReserved       = "RESERVED"
	TicketStateInVerification = "IN_VERIFICATION"
	TicketStateSold           = "SOLD"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:ticket"`

	RaffleID      string    `bun:"raffle_id,pk" json:"raffle_id"`
	Number        int       `bun:"number,pk" json:"number"`
	State         string    `bun:"state,notnull" json:"state"`
	ParticipantID string    `bun:"participant_id,nullzero" json:"participant_id,omitempty"`
	PurchaseID    string    `bun:"purchase_id,nullzero" json:"purchase_id,omitempty"`
	UnitPrice     float64   `bun:"unit_price" json:"unit_price"`
	ReservedAt    time.Time `bun:"reserved_at,nullzero" json:"reserved_at,omitempty"`
	ExpiresAt     time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// DisplayNumber renders a ticket number in the public 0000-9999 format.
func DisplayNumber(n int) string {
	return fmt.Sprintf("%04d", n)
}
