package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Participant identity is keyed by phone number (celular); email is a
// secondary dedup key. Participants are created on first purchase and are
// never deleted while tickets or purchases reference them.
type Participant struct {
	bun.BaseModel `bun:"table:participants"`

	ParticipantID string    `bun:"participant_id,pk" json:"participant_id"`
	Nombre        string    `bun:"nombre,notnull" json:"nombre"`
	Celular       string    `bun:"celular,notnull,unique" json:"celular"`
	Email         string    `bun:"email,nullzero" json:"email,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ParticipantInfo is the contact payload a visitor submits with a reservation.
type ParticipantInfo struct {
	Nombre  string `json:"nombre"`
	Celular string `json:"celular"`
	Email   string `json:"email,omitempty"`
}

// MaskPhone hides all but the last three digits of a phone number.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

// MaskEmail hides the local part of an email except its first character.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
