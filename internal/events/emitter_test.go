package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/events"
	"ms-raffle/internal/models"
)

func receiveEvent(t *testing.T, ch chan models.RaffleEvent) models.RaffleEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.RaffleEvent{}
	}
}

func TestEmitRoutesByRaffle(t *testing.T) {
	emitter := events.NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chanA := emitter.SubscribeToRaffle(ctx, "raffle-a")
	chanB := emitter.SubscribeToRaffle(ctx, "raffle-b")

	emitter.Emit(models.NewRaffleEvent(models.EventTicketsReserved, "raffle-a"))

	event := receiveEvent(t, chanA)
	assert.Equal(t, "raffle-a", event.RaffleID)
	assert.Equal(t, models.EventTicketsReserved, event.Type)

	select {
	case unexpected := <-chanB:
		t.Fatalf("raffle-b subscriber got event for %s", unexpected.RaffleID)
	default:
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	emitter := events.NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firehose := emitter.SubscribeAll(ctx)

	emitter.Emit(models.NewRaffleEvent(models.EventTicketsReserved, "raffle-a"))
	emitter.Emit(models.NewRaffleEvent(models.EventPurchaseExpired, "raffle-b"))

	first := receiveEvent(t, firehose)
	second := receiveEvent(t, firehose)
	assert.Equal(t, "raffle-a", first.RaffleID)
	assert.Equal(t, "raffle-b", second.RaffleID)
}

func TestContextCancelRemovesSubscriber(t *testing.T) {
	emitter := events.NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.SubscribeToRaffle(ctx, "raffle-a")
	require.Equal(t, 1, emitter.RaffleClientCount("raffle-a"))

	cancel()

	// Removal runs in a goroutine; wait for the channel to close.
	assert.Eventually(t, func() bool {
		return emitter.RaffleClientCount("raffle-a") == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)

	// Emitting after removal must not panic or deliver.
	emitter.Emit(models.NewRaffleEvent(models.EventTicketsReserved, "raffle-a"))
}

func TestEmitNeverBlocksOnSlowClient(t *testing.T) {
	emitter := events.NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter.SubscribeToRaffle(ctx, "raffle-a")

	// Channel buffer is 10; a client that never reads must not stall Emit.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			emitter.Emit(models.NewRaffleEvent(models.EventTicketsReserved, "raffle-a"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
}
