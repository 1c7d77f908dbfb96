package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DrawMethodFNV1aLCG identifies the pinned winner-selection algorithm:
// FNV-1a 64 over the seed string, one LCG mixing step, modulo the sold count.
// Changing the algorithm would break retroactive audits, so a new method gets
// a new name instead.
const DrawMethodFNV1aLCG = "fnv1a-lcg-v1"

type Draw struct {
	bun.BaseModel `bun:"table:draws"`

	DrawID        string    `bun:"draw_id,pk" json:"draw_id"`
	RaffleID      string    `bun:"raffle_id,notnull,unique" json:"raffle_id"`
	Seed          string    `bun:"seed,notnull" json:"seed"`
	Method        string    `bun:"method,notnull" json:"method"`
	WinningNumber int       `bun:"winning_number,notnull" json:"winning_number"`
	WinnerID      string    `bun:"winner_id,nullzero" json:"winner_id,omitempty"`
	SoldSnapshot  []int     `bun:"sold_snapshot,array" json:"sold_snapshot"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// DrawVerification is the public audit result: the recorded winner next to a
// recomputation from the stored seed and sold-ticket snapshot.
type DrawVerification struct {
	DrawID           string `json:"draw_id"`
	Reproducible     bool   `json:"reproducible"`
	Seed             string `json:"seed"`
	Method           string `json:"method"`
	RecordedNumber   int    `json:"recorded_number"`
	RecomputedNumber int    `json:"recomputed_number"`
}
