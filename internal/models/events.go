package models

import "time"

// Domain event types published on the internal emitter and on Kafka.
const (
	EventTicketsReserved = "tickets_reserved"
	EventProofSubmitted  = "proof_submitted"
	EventPurchaseDecided = "purchase_decided"
	EventPurchaseExpired = "purchase_expired"
	EventDrawCompleted   = "draw_completed"
)

// RaffleEvent is the wire shape shared by the in-process emitter, the Kafka
// topics and the notification worker.
type RaffleEvent struct {
	Type       string    `json:"type"`
	RaffleID   string    `json:"raffle_id"`
	PurchaseID string    `json:"purchase_id,omitempty"`
	DrawID     string    `json:"draw_id,omitempty"`
	Numbers    []int     `json:"numbers,omitempty"`
	State      string    `json:"state,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewRaffleEvent(eventType, raffleID string) RaffleEvent {
	return RaffleEvent{
		Type:       eventType,
		RaffleID:   raffleID,
		OccurredAt: time.Now().UTC(),
	}
}
