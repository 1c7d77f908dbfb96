package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
)

// DB is the ticket ledger: the single authoritative store for tickets,
// purchases and participants. Every mutation path (allocator, verification,
// sweeper) goes through one transaction here with conditional updates keyed
// on the current state, so no two concurrent writers can both believe they
// own a ticket.
type DB struct {
	Bun *bun.DB
}

// ---------------- RAFFLES ----------------

func (d *DB) GetRaffle(id string) (*models.Raffle, error) {
	var raffle models.Raffle
	err := d.Bun.NewSelect().
		Model(&raffle).
		Where("raffle_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

// ---------------- ALLOCATOR ----------------

// ReserveNumbers claims the requested numbers under a new purchase. The whole
// sequence - conflict check, participant resolution, purchase creation and
// ticket upserts - is one transaction: either every number ends up RESERVED
// under the purchase, or none do. A number whose row is absent counts as
// AVAILABLE.
func (d *DB) ReserveNumbers(raffle *models.Raffle, numbers []int, info models.ParticipantInfo) (*models.Purchase, []models.Ticket, error) {
	now := time.Now()
	expiry := now.Add(raffle.HoldDuration())

	var purchase models.Purchase
	var tickets []models.Ticket

	err := d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Re-check occupancy inside the transaction. Anything not AVAILABLE
		// conflicts; rows are never deleted while the raffle exists, so this
		// together with the conditional upserts below is race-free.
		var taken []int
		err := tx.NewSelect().
			Model((*models.Ticket)(nil)).
			Column("number").
			Where("raffle_id = ?", raffle.RaffleID).
			Where("number IN (?)", bun.In(numbers)).
			Where("state != ?", models.TicketStateAvailable).
			Scan(ctx, &taken)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &models.ConflictError{Numbers: taken}
		}

		participant, err := resolveParticipantTx(ctx, tx, info)
		if err != nil {
			return err
		}

		if raffle.MaxPerPerson > 0 {
			live, err := liveTicketCountTx(ctx, tx, raffle.RaffleID, participant.ParticipantID)
			if err != nil {
				return err
			}
			if live+len(numbers) > raffle.MaxPerPerson {
				return models.NewValidationError(
					"per-person limit of %d tickets exceeded", raffle.MaxPerPerson)
			}
		}

		purchase = models.Purchase{
			PurchaseID:    uuid.NewString(),
			RaffleID:      raffle.RaffleID,
			ParticipantID: participant.ParticipantID,
			TicketCount:   len(numbers),
			UnitPrice:     raffle.UnitPrice,
			TotalAmount:   float64(len(numbers)) * raffle.UnitPrice,
			State:         models.PurchaseStatePending,
			ExpiresAt:     expiry,
			CreatedAt:     now,
		}
		if _, err := tx.NewInsert().Model(&purchase).Exec(ctx); err != nil {
			return err
		}

		tickets = tickets[:0]
		var conflicts []int
		for _, number := range numbers {
			ticket := models.Ticket{
				RaffleID:      raffle.RaffleID,
				Number:        number,
				State:         models.TicketStateReserved,
				ParticipantID: participant.ParticipantID,
				PurchaseID:    purchase.PurchaseID,
				UnitPrice:     raffle.UnitPrice,
				ReservedAt:    now,
				ExpiresAt:     expiry,
			}

			// Lazily materialize the row; if it already exists it may only be
			// claimed while still AVAILABLE. Zero rows affected means a
			// concurrent reserver got there first.
			res, err := tx.NewInsert().
				Model(&ticket).
				On("CONFLICT (raffle_id, number) DO UPDATE").
				Set("state = EXCLUDED.state").
				Set("participant_id = EXCLUDED.participant_id").
				Set("purchase_id = EXCLUDED.purchase_id").
				Set("unit_price = EXCLUDED.unit_price").
				Set("reserved_at = EXCLUDED.reserved_at").
				Set("expires_at = EXCLUDED.expires_at").
				Where("ticket.state = ?", models.TicketStateAvailable).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				conflicts = append(conflicts, number)
				continue
			}
			tickets = append(tickets, ticket)
		}
		if len(conflicts) > 0 {
			return &models.ConflictError{Numbers: conflicts}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &purchase, tickets, nil
}

func resolveParticipantTx(ctx context.Context, tx bun.Tx, info models.ParticipantInfo) (*models.Participant, error) {
	var participant models.Participant
	err := tx.NewSelect().
		Model(&participant).
		Where("celular = ?", info.Celular).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &participant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if info.Email != "" {
		err = tx.NewSelect().
			Model(&participant).
			Where("email = ?", info.Email).
			Limit(1).
			Scan(ctx)
		if err == nil {
			return &participant, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	participant = models.Participant{
		ParticipantID: uuid.NewString(),
		Nombre:        info.Nombre,
		Celular:       info.Celular,
		Email:         info.Email,
		CreatedAt:     time.Now(),
	}
	if _, err := tx.NewInsert().Model(&participant).Exec(ctx); err != nil {
		return nil, err
	}
	return &participant, nil
}

func liveTicketCountTx(ctx context.Context, tx bun.Tx, raffleID, participantID string) (int, error) {
	return tx.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("raffle_id = ?", raffleID).
		Where("participant_id = ?", participantID).
		Where("state IN (?)", bun.In([]string{
			models.TicketStateReserved,
			models.TicketStateInVerification,
			models.TicketStateSold,
		})).
		Count(ctx)
}

// ---------------- PURCHASES ----------------

func (d *DB) GetPurchaseByID(id string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := d.Bun.NewSelect().
		Model(&purchase).
		Where("purchase_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (d *DB) GetPurchaseByReference(reference string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := d.Bun.NewSelect().
		Model(&purchase).
		Where("payment_reference = ?", reference).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (d *DB) GetParticipant(id string) (*models.Participant, error) {
	var participant models.Participant
	err := d.Bun.NewSelect().
		Model(&participant).
		Where("participant_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// TicketsByPurchase fetches a purchase's tickets ordered by number.
func (d *DB) TicketsByPurchase(purchaseID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("purchase_id = ?", purchaseID).
		Order("number ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket fetches one number's row. Absent rows mean the number has never
// been reserved, reported as ErrNotFound.
func (d *DB) GetTicket(raffleID string, number int) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("raffle_id = ?", raffleID).
		Where("number = ?", number).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// TakenTickets returns every non-AVAILABLE ticket of a raffle; absent numbers
// are implicitly available, so this is the whole occupancy picture.
func (d *DB) TakenTickets(raffleID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("raffle_id = ?", raffleID).
		Where("state != ?", models.TicketStateAvailable).
		Order("number ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// AttachPaymentIntent records the Stripe payment intent created for a purchase.
func (d *DB) AttachPaymentIntent(purchaseID, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Purchase)(nil)).
		Set("payment_intent_id = ?", intentID).
		Where("purchase_id = ?", purchaseID).
		Exec(context.Background())
	return err
}

// ---------------- VERIFICATION STATE MACHINE ----------------

// SubmitProof moves a PENDING purchase and its tickets to IN_VERIFICATION. If
// the reservation window has already elapsed the purchase is expired and its
// tickets released instead, and ErrReservationExpired is returned. The expiry
// must outlive the failed request, so it is committed rather than signalled
// from inside the transaction: an error return would roll it back.
func (d *DB) SubmitProof(purchaseID, referencia, voucher string, now time.Time) (*models.Purchase, error) {
	var purchase models.Purchase
	var expired bool

	err := d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPurchaseTx(ctx, tx, purchaseID, &purchase); err != nil {
			return err
		}
		if purchase.State != models.PurchaseStatePending {
			return models.ErrInvalidStateTransition
		}

		if now.After(purchase.ExpiresAt) {
			expired = true
			return expirePurchaseTx(ctx, tx, &purchase, now)
		}

		purchase.State = models.PurchaseStateInVerification
		purchase.PaymentReference = referencia
		purchase.ProofURL = voucher
		res, err := tx.NewUpdate().
			Model(&purchase).
			Column("state", "payment_reference", "proof_url").
			Where("purchase_id = ?", purchaseID).
			Where("state = ?", models.PurchaseStatePending).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return models.ErrInvalidStateTransition
		}

		_, err = tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("state = ?", models.TicketStateInVerification).
			Where("purchase_id = ?", purchaseID).
			Where("state = ?", models.TicketStateReserved).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, models.ErrReservationExpired
	}
	return &purchase, nil
}

// Decide finalizes a purchase in verification. APPROVE makes its tickets SOLD
// (terminal); REJECT returns the numbers to the pool immediately.
func (d *DB) Decide(purchaseID string, approve bool, notas string, now time.Time) (*models.Purchase, error) {
	var purchase models.Purchase

	err := d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPurchaseTx(ctx, tx, purchaseID, &purchase); err != nil {
			return err
		}
		if purchase.State != models.PurchaseStateInVerification {
			return models.ErrInvalidStateTransition
		}

		if approve {
			purchase.State = models.PurchaseStateConfirmed
		} else {
			purchase.State = models.PurchaseStateRejected
		}
		purchase.AdminNotes = notas
		purchase.DecidedAt = now

		res, err := tx.NewUpdate().
			Model(&purchase).
			Column("state", "admin_notes", "decided_at").
			Where("purchase_id = ?", purchaseID).
			Where("state = ?", models.PurchaseStateInVerification).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return models.ErrInvalidStateTransition
		}

		if approve {
			_, err = tx.NewUpdate().
				Model((*models.Ticket)(nil)).
				Set("state = ?", models.TicketStateSold).
				Where("purchase_id = ?", purchaseID).
				Where("state = ?", models.TicketStateInVerification).
				Exec(ctx)
			return err
		}
		return releaseTicketsTx(ctx, tx, purchaseID, models.TicketStateInVerification)
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ---------------- SWEEPER ----------------

// SweepExpired reverts every RESERVED ticket whose hold elapsed before now
// and expires its owning purchase if still PENDING. Conditional updates keyed
// on the current state make it idempotent and safe against a concurrent
// submit-proof: whichever transaction commits first wins, the other sees zero
// rows.
func (d *DB) SweepExpired(now time.Time) ([]models.SweptPurchase, error) {
	var expired []models.SweptPurchase

	err := d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var stale []models.Purchase
		err := tx.NewSelect().
			Model(&stale).
			Where("state = ?", models.PurchaseStatePending).
			Where("expires_at < ?", now).
			Scan(ctx)
		if err != nil {
			return err
		}

		for i := range stale {
			// Capture the numbers before the sweep detaches them.
			numbers, err := ticketNumbersTx(ctx, tx, stale[i].PurchaseID)
			if err != nil {
				return err
			}
			swept, err := sweepPurchaseTx(ctx, tx, &stale[i], now)
			if err != nil {
				return err
			}
			if swept {
				expired = append(expired, models.SweptPurchase{Purchase: stale[i], Numbers: numbers})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// SweepPurchase reclaims one purchase's tickets if its hold elapsed. Used by
// the Redis lock-expiry subscription for targeted reclamation. Returns nil
// when there was nothing to sweep.
func (d *DB) SweepPurchase(purchaseID string, now time.Time) (*models.SweptPurchase, error) {
	var result *models.SweptPurchase
	err := d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var purchase models.Purchase
		if err := lockPurchaseTx(ctx, tx, purchaseID, &purchase); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		if purchase.State != models.PurchaseStatePending || now.Before(purchase.ExpiresAt) {
			return nil
		}
		numbers, err := ticketNumbersTx(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		swept, err := sweepPurchaseTx(ctx, tx, &purchase, now)
		if err != nil {
			return err
		}
		if swept {
			result = &models.SweptPurchase{Purchase: purchase, Numbers: numbers}
		}
		return nil
	})
	return result, err
}

func ticketNumbersTx(ctx context.Context, tx bun.Tx, purchaseID string) ([]int, error) {
	var numbers []int
	err := tx.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("number").
		Where("purchase_id = ?", purchaseID).
		Order("number ASC").
		Scan(ctx, &numbers)
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func sweepPurchaseTx(ctx context.Context, tx bun.Tx, purchase *models.Purchase, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*models.Purchase)(nil)).
		Set("state = ?", models.PurchaseStateExpired).
		Set("decided_at = ?", now).
		Where("purchase_id = ?", purchase.PurchaseID).
		Where("state = ?", models.PurchaseStatePending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// A concurrent submit-proof moved the purchase on; leave it alone.
		return false, nil
	}
	if err := releaseTicketsTx(ctx, tx, purchase.PurchaseID, models.TicketStateReserved); err != nil {
		return false, err
	}
	purchase.State = models.PurchaseStateExpired
	return true, nil
}

func expirePurchaseTx(ctx context.Context, tx bun.Tx, purchase *models.Purchase, now time.Time) error {
	_, err := sweepPurchaseTx(ctx, tx, purchase, now)
	return err
}

// releaseTicketsTx returns a purchase's tickets to the pool, clearing the
// ownership and reservation fields. Only tickets still in fromState move;
// SOLD tickets are never touched.
func releaseTicketsTx(ctx context.Context, tx bun.Tx, purchaseID, fromState string) error {
	_, err := tx.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("state = ?", models.TicketStateAvailable).
		Set("participant_id = NULL").
		Set("purchase_id = NULL").
		Set("reserved_at = NULL").
		Set("expires_at = NULL").
		Where("purchase_id = ?", purchaseID).
		Where("state = ?", fromState).
		Exec(ctx)
	return err
}

func lockPurchaseTx(ctx context.Context, tx bun.Tx, purchaseID string, purchase *models.Purchase) error {
	err := tx.NewSelect().
		Model(purchase).
		Where("purchase_id = ?", purchaseID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
