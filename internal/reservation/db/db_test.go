package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-raffle/internal/models"
	"ms-raffle/internal/reservation/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// Every sqlite connection opens its own in-memory database; a single
	// pooled connection keeps all transactions on the same one.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	for _, model := range []interface{}{
		(*models.Raffle)(nil),
		(*models.Participant)(nil),
		(*models.Purchase)(nil),
		(*models.Ticket)(nil),
	} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		if err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertRaffle(t *testing.T, bunDB *bun.DB, maxPerPerson int) *models.Raffle {
	raffle := &models.Raffle{
		RaffleID:     uuid.NewString(),
		Name:         "Test Raffle",
		TotalTickets: 100,
		UnitPrice:    5.0,
		MaxPerPerson: maxPerPerson,
		HoldMinutes:  30,
		State:        models.RaffleStateActive,
		CreatedAt:    time.Now(),
	}
	_, err := bunDB.NewInsert().Model(raffle).Exec(context.Background())
	require.NoError(t, err)
	return raffle
}

func testParticipant() models.ParticipantInfo {
	return models.ParticipantInfo{
		Nombre:  "Maria Perez",
		Celular: "+584141234567",
		Email:   "maria@example.com",
	}
}

func TestReserveNumbers(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, tickets, err := ledger.ReserveNumbers(raffle, []int{7, 3, 42}, testParticipant())
	require.NoError(t, err)
	require.NotNil(t, purchase)

	assert.Equal(t, models.PurchaseStatePending, purchase.State)
	assert.Equal(t, 3, purchase.TicketCount)
	assert.Equal(t, 15.0, purchase.TotalAmount)
	assert.True(t, purchase.ExpiresAt.After(time.Now()))

	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStateReserved, ticket.State)
		assert.Equal(t, purchase.PurchaseID, ticket.PurchaseID)
		assert.Equal(t, 5.0, ticket.UnitPrice)
	}

	stored, err := ledger.TicketsByPurchase(purchase.PurchaseID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int{3, 7, 42}, []int{stored[0].Number, stored[1].Number, stored[2].Number})
}

func TestReserveNumbersAllOrNothing(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	first, _, err := ledger.ReserveNumbers(raffle, []int{7}, testParticipant())
	require.NoError(t, err)

	other := models.ParticipantInfo{Nombre: "Jose Gomez", Celular: "+584249876543"}
	_, _, err = ledger.ReserveNumbers(raffle, []int{5, 7, 9}, other)
	require.Error(t, err)

	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{7}, conflict.Numbers)

	// Nothing of the failed request may stick: 5 and 9 stay available.
	taken, err := ledger.TakenTickets(raffle.RaffleID)
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Equal(t, 7, taken[0].Number)
	assert.Equal(t, first.PurchaseID, taken[0].PurchaseID)

	count, err := bunDB.NewSelect().Model((*models.Purchase)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReserveNumbersConcurrentOverlap(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	// Every attempt overlaps with its two neighbours, so each number is
	// fought over by three goroutines and may be won at most once.
	const attempts = 10
	type outcome struct {
		purchase *models.Purchase
		numbers  []int
		err      error
	}
	results := make([]outcome, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			numbers := []int{i, (i + 1) % attempts, (i + 2) % attempts}
			info := models.ParticipantInfo{
				Nombre:  fmt.Sprintf("Participante %d", i),
				Celular: fmt.Sprintf("+58414000%04d", i),
			}
			purchase, _, err := ledger.ReserveNumbers(raffle, numbers, info)
			results[i] = outcome{purchase: purchase, numbers: numbers, err: err}
		}(i)
	}
	wg.Wait()

	owners := make(map[int]string)
	for _, res := range results {
		if res.err != nil {
			// Losers fail whole: a conflict naming at least one number,
			// never a partial claim.
			var conflict *models.ConflictError
			require.ErrorAs(t, res.err, &conflict)
			assert.NotEmpty(t, conflict.Numbers)
			continue
		}
		for _, number := range res.numbers {
			owner, clash := owners[number]
			assert.Falsef(t, clash, "number %d won by both %s and %s", number, owner, res.purchase.PurchaseID)
			owners[number] = res.purchase.PurchaseID
		}
	}

	// The ledger agrees with the winners: every reserved row belongs to the
	// purchase that won its number, and failed attempts left nothing behind.
	taken, err := ledger.TakenTickets(raffle.RaffleID)
	require.NoError(t, err)
	require.Len(t, taken, len(owners))
	for _, ticket := range taken {
		assert.Equal(t, models.TicketStateReserved, ticket.State)
		assert.Equal(t, owners[ticket.Number], ticket.PurchaseID)
	}
}

func TestReserveNumbersReusesParticipantByCelular(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	p1, _, err := ledger.ReserveNumbers(raffle, []int{1}, testParticipant())
	require.NoError(t, err)

	// Same celular, different casing of the rest of the contact data.
	info := testParticipant()
	info.Nombre = "Maria P."
	info.Email = ""
	p2, _, err := ledger.ReserveNumbers(raffle, []int{2}, info)
	require.NoError(t, err)

	assert.Equal(t, p1.ParticipantID, p2.ParticipantID)

	count, err := bunDB.NewSelect().Model((*models.Participant)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReserveNumbersPerPersonLimit(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 3)

	_, _, err := ledger.ReserveNumbers(raffle, []int{1, 2}, testParticipant())
	require.NoError(t, err)

	_, _, err = ledger.ReserveNumbers(raffle, []int{3, 4}, testParticipant())
	require.Error(t, err)

	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestSubmitProofMovesToVerification(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{10, 11}, testParticipant())
	require.NoError(t, err)

	updated, err := ledger.SubmitProof(purchase.PurchaseID, "rif_123", "https://proof.example/1.jpg", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStateInVerification, updated.State)
	assert.Equal(t, "rif_123", updated.PaymentReference)

	tickets, err := ledger.TicketsByPurchase(purchase.PurchaseID)
	require.NoError(t, err)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStateInVerification, ticket.State)
	}

	// Double submission is rejected.
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_456", "", time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestSubmitProofAfterExpiryReleasesTickets(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{20}, testParticipant())
	require.NoError(t, err)

	late := purchase.ExpiresAt.Add(time.Minute)
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_late", "", late)
	assert.ErrorIs(t, err, models.ErrReservationExpired)

	stored, err := ledger.GetPurchaseByID(purchase.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStateExpired, stored.State)

	taken, err := ledger.TakenTickets(raffle.RaffleID)
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestDecideApprove(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{30, 31}, testParticipant())
	require.NoError(t, err)
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_ok", "", time.Now())
	require.NoError(t, err)

	decided, err := ledger.Decide(purchase.PurchaseID, true, "pago verificado", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStateConfirmed, decided.State)
	assert.Equal(t, "pago verificado", decided.AdminNotes)
	assert.False(t, decided.DecidedAt.IsZero())

	tickets, err := ledger.TicketsByPurchase(purchase.PurchaseID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStateSold, ticket.State)
	}
}

func TestDecideReject(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{40}, testParticipant())
	require.NoError(t, err)
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_bad", "", time.Now())
	require.NoError(t, err)

	decided, err := ledger.Decide(purchase.PurchaseID, false, "referencia invalida", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStateRejected, decided.State)

	// The number goes straight back to the pool and can be claimed again.
	taken, err := ledger.TakenTickets(raffle.RaffleID)
	require.NoError(t, err)
	assert.Empty(t, taken)

	other := models.ParticipantInfo{Nombre: "Jose Gomez", Celular: "+584249876543"}
	_, _, err = ledger.ReserveNumbers(raffle, []int{40}, other)
	assert.NoError(t, err)
}

func TestDecideRequiresVerificationState(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{50}, testParticipant())
	require.NoError(t, err)

	_, err = ledger.Decide(purchase.PurchaseID, true, "", time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestSweepExpired(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	stale, _, err := ledger.ReserveNumbers(raffle, []int{60, 61}, testParticipant())
	require.NoError(t, err)
	fresh, _, err := ledger.ReserveNumbers(raffle, []int{62},
		models.ParticipantInfo{Nombre: "Jose Gomez", Celular: "+584249876543"})
	require.NoError(t, err)

	// Only the first purchase is past its hold.
	cutoff := stale.ExpiresAt.Add(time.Second)
	_, err = bunDB.NewUpdate().
		Model((*models.Purchase)(nil)).
		Set("expires_at = ?", cutoff.Add(time.Hour)).
		Where("purchase_id = ?", fresh.PurchaseID).
		Exec(context.Background())
	require.NoError(t, err)

	swept, err := ledger.SweepExpired(cutoff)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, stale.PurchaseID, swept[0].Purchase.PurchaseID)
	assert.Equal(t, []int{60, 61}, swept[0].Numbers)

	// The fresh reservation is untouched.
	kept, err := ledger.GetPurchaseByID(fresh.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatePending, kept.State)

	// Idempotent: a second pass finds nothing.
	swept, err = ledger.SweepExpired(cutoff)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestSweepSkipsVerificationPurchases(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{70}, testParticipant())
	require.NoError(t, err)
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_proof", "", time.Now())
	require.NoError(t, err)

	swept, err := ledger.SweepExpired(purchase.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, swept)

	stored, err := ledger.GetPurchaseByID(purchase.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStateInVerification, stored.State)
}

func TestSweepPurchaseTargeted(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{80}, testParticipant())
	require.NoError(t, err)

	// Not yet expired: no-op.
	swept, err := ledger.SweepPurchase(purchase.PurchaseID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, swept)

	swept, err = ledger.SweepPurchase(purchase.PurchaseID, purchase.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, swept)
	assert.Equal(t, []int{80}, swept.Numbers)

	// Unknown purchases are silently ignored.
	swept, err = ledger.SweepPurchase("missing", time.Now())
	require.NoError(t, err)
	assert.Nil(t, swept)
}

func TestGetPurchaseByReference(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()
	raffle := insertRaffle(t, bunDB, 0)

	purchase, _, err := ledger.ReserveNumbers(raffle, []int{90}, testParticipant())
	require.NoError(t, err)
	_, err = ledger.SubmitProof(purchase.PurchaseID, "rif_lookup", "", time.Now())
	require.NoError(t, err)

	found, err := ledger.GetPurchaseByReference("rif_lookup")
	require.NoError(t, err)
	assert.Equal(t, purchase.PurchaseID, found.PurchaseID)

	_, err = ledger.GetPurchaseByReference("rif_unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
