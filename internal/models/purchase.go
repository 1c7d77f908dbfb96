package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Purchase payment states. CONFIRMED, REJECTED and EXPIRED are terminal.
const (
	PurchaseStatePending        = "PENDING"
	PurchaseStateInVerification = "IN_VERIFICATION"
	PurchaseStateConfirmed      = "CONFIRMED"
	PurchaseStateRejected       = "REJECTED"
	PurchaseStateExpired        = "EXPIRED"
)

// IsTerminalPurchaseState reports whether a purchase may no longer transition.
func IsTerminalPurchaseState(state string) bool {
	switch state {
	case PurchaseStateConfirmed, PurchaseStateRejected, PurchaseStateExpired:
		return true
	}
	return false
}

// TicketStateForPurchase maps a purchase state to the ticket state all of its
// tickets must hold. The two enums share words but are distinct vocabularies;
// this table is the only place they meet.
func TicketStateForPurchase(purchaseState string) string {
	switch purchaseState {
	case PurchaseStatePending:
		return TicketStateReserved
	case PurchaseStateInVerification:
		return TicketStateInVerification
	case PurchaseStateConfirmed:
		return TicketStateSold
	default:
		// REJECTED and EXPIRED release the numbers back to the pool.
		return TicketStateAvailable
	}
}

type Purchase struct {
	bun.BaseModel `bun:"table:purchases"`

	PurchaseID       string    `bun:"purchase_id,pk" json:"purchase_id"`
	RaffleID         string    `bun:"raffle_id,notnull" json:"raffle_id"`
	ParticipantID    string    `bun:"participant_id,notnull" json:"participant_id"`
	TicketCount      int       `bun:"ticket_count,notnull" json:"ticket_count"`
	UnitPrice        float64   `bun:"unit_price,notnull" json:"unit_price"`
	TotalAmount      float64   `bun:"total_amount,notnull" json:"total_amount"`
	State            string    `bun:"state,notnull" json:"state"`
	PaymentReference string    `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	ProofURL         string    `bun:"proof_url,nullzero" json:"proof_url,omitempty"`
	AdminNotes       string    `bun:"admin_notes,nullzero" json:"admin_notes,omitempty"`
	PaymentIntentID  string    `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	ExpiresAt        time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
	DecidedAt        time.Time `bun:"decided_at,nullzero" json:"decided_at,omitempty"`
}

// SweptPurchase pairs an expired purchase with the numbers it held, captured
// before the ledger detached them.
type SweptPurchase struct {
	Purchase Purchase
	Numbers  []int
}

// ReserveRequest is the payload for claiming a set of ticket numbers.
type ReserveRequest struct {
	Numbers     []int           `json:"numbers"`
	Participant ParticipantInfo `json:"participant"`
}

// ReserveResponse reports a successful reservation.
type ReserveResponse struct {
	PurchaseID       string    `json:"purchase_id"`
	RaffleID         string    `json:"raffle_id"`
	Numbers          []int     `json:"tickets"`
	MontoTotal       float64   `json:"monto_total"`
	FechaVencimiento time.Time `json:"fecha_vencimiento"`
}

// ProofRequest carries an externally supplied payment reference plus an
// opaque proof pointer (URL or base64); the engine never looks inside it.
type ProofRequest struct {
	Referencia string `json:"referencia"`
	Voucher    string `json:"voucher,omitempty"`
}

// DecisionRequest is the admin verdict on a purchase in verification.
type DecisionRequest struct {
	Accion string `json:"accion"` // "aprobar" or "rechazar"
	Notas  string `json:"notas,omitempty"`
}

// PurchaseSummary is the masked public view of a purchase and its tickets.
type PurchaseSummary struct {
	PurchaseID       string    `json:"purchase_id"`
	RaffleID         string    `json:"raffle_id"`
	Numbers          []string  `json:"numbers"`
	Estado           string    `json:"estado"`
	MontoTotal       float64   `json:"monto_total"`
	FechaVencimiento time.Time `json:"fecha_vencimiento"`
	Nombre           string    `json:"nombre"`
	Celular          string    `json:"celular"`
	Email            string    `json:"email,omitempty"`
	Referencia       string    `json:"referencia,omitempty"`
	VoucherQR        []byte    `json:"voucher_qr,omitempty"`
}
