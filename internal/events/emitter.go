package events

import (
	"context"
	"sync"

	"ms-raffle/internal/models"
)

// Emitter is the in-process pub/sub channel for domain events. Publishers
// (reservation, payment, sweeper, draw) emit after their transaction commits;
// subscribers (the admin SSE feed) consume independently, so the reservation
// engine stays free of UI concerns.
type Emitter struct {
	// Per-raffle subscribers - key: raffleID
	raffleClients     map[string][]chan models.RaffleEvent
	raffleClientMutex sync.RWMutex

	// Firehose subscribers receiving every event
	allClients     []chan models.RaffleEvent
	allClientMutex sync.RWMutex
}

func NewEmitter() *Emitter {
	return &Emitter{
		raffleClients: make(map[string][]chan models.RaffleEvent),
	}
}

// SubscribeToRaffle adds a client to one raffle's event stream.
func (e *Emitter) SubscribeToRaffle(ctx context.Context, raffleID string) chan models.RaffleEvent {
	clientChan := make(chan models.RaffleEvent, 10)

	e.raffleClientMutex.Lock()
	e.raffleClients[raffleID] = append(e.raffleClients[raffleID], clientChan)
	e.raffleClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeRaffleClient(raffleID, clientChan)
	}()

	return clientChan
}

// SubscribeAll adds a client that receives events for every raffle.
func (e *Emitter) SubscribeAll(ctx context.Context) chan models.RaffleEvent {
	clientChan := make(chan models.RaffleEvent, 10)

	e.allClientMutex.Lock()
	e.allClients = append(e.allClients, clientChan)
	e.allClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeAllClient(clientChan)
	}()

	return clientChan
}

// Emit broadcasts an event to all subscribed clients. Sends are non-blocking;
// a slow client misses events rather than stalling the publisher.
func (e *Emitter) Emit(event models.RaffleEvent) {
	e.raffleClientMutex.RLock()
	clients := e.raffleClients[event.RaffleID]
	e.raffleClientMutex.RUnlock()

	for _, clientChan := range clients {
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client for now
		}
	}

	e.allClientMutex.RLock()
	all := e.allClients
	e.allClientMutex.RUnlock()

	for _, clientChan := range all {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *Emitter) removeRaffleClient(raffleID string, clientChan chan models.RaffleEvent) {
	e.raffleClientMutex.Lock()
	defer e.raffleClientMutex.Unlock()

	clients := e.raffleClients[raffleID]
	for i, ch := range clients {
		if ch == clientChan {
			e.raffleClients[raffleID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.raffleClients[raffleID]) == 0 {
		delete(e.raffleClients, raffleID)
	}
}

func (e *Emitter) removeAllClient(clientChan chan models.RaffleEvent) {
	e.allClientMutex.Lock()
	defer e.allClientMutex.Unlock()

	for i, ch := range e.allClients {
		if ch == clientChan {
			e.allClients = append(e.allClients[:i], e.allClients[i+1:]...)
			close(clientChan)
			break
		}
	}
}

// RaffleClientCount returns the number of clients subscribed to a raffle.
func (e *Emitter) RaffleClientCount(raffleID string) int {
	e.raffleClientMutex.RLock()
	defer e.raffleClientMutex.RUnlock()
	return len(e.raffleClients[raffleID])
}
