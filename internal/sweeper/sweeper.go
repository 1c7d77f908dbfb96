package sweeper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

type DBLayer interface {
	SweepExpired(now time.Time) ([]models.SweptPurchase, error)
	SweepPurchase(purchaseID string, now time.Time) (*models.SweptPurchase, error)
	GetTicket(raffleID string, number int) (*models.Ticket, error)
}

type KafkaPublisher interface {
	PublishEvent(topic string, event models.RaffleEvent) error
}

type EventEmitter interface {
	Emit(event models.RaffleEvent)
}

// Sweeper reclaims expired reservations. Two triggers feed it: a periodic
// scan over all pending purchases, and Redis keyspace expiry notifications
// for targeted reclamation the moment a number lock's TTL elapses. Both paths
// run the same conditional ledger updates, so double firing is harmless.
type Sweeper struct {
	DB           DBLayer
	Kafka        KafkaPublisher
	Emitter      EventEmitter
	ExpiredTopic string
	Interval     time.Duration
	Logger       *logger.Logger
}

func New(db DBLayer, kafka KafkaPublisher, emitter EventEmitter, expiredTopic string, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		DB:           db,
		Kafka:        kafka,
		Emitter:      emitter,
		ExpiredTopic: expiredTopic,
		Interval:     interval,
		Logger:       log,
	}
}

// Start runs the periodic sweep until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.Logger.Info("SWEEP", fmt.Sprintf("Periodic sweep started (every %s)", s.Interval))
		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("SWEEP", "Periodic sweep stopped")
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(time.Now()); err != nil {
					s.Logger.Error("SWEEP", fmt.Sprintf("Sweep failed: %v", err))
				}
			}
		}
	}()
}

// SweepOnce expires every pending purchase whose hold elapsed before now and
// returns how many were reclaimed.
func (s *Sweeper) SweepOnce(now time.Time) (int, error) {
	swept, err := s.DB.SweepExpired(now)
	if err != nil {
		return 0, err
	}
	for _, sp := range swept {
		s.Logger.LogSweep(sp.Purchase.PurchaseID, fmt.Sprintf(
			"Expired purchase released %d tickets (raffle %s)", len(sp.Numbers), sp.Purchase.RaffleID))
		s.publishExpired(sp)
	}
	return len(swept), nil
}

// SubscribeNumberUnlocks listens for Redis key expiry events on number locks
// and sweeps the owning purchase as soon as its hold elapses, instead of
// waiting for the next periodic pass.
func (s *Sweeper) SubscribeNumberUnlocks(ctx context.Context, rdb *redis.Client) {
	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		s.Logger.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else {
		s.Logger.Info("REDIS", fmt.Sprintf("Current keyspace notifications setting: %v", val))
		if len(val) < 2 {
			s.Logger.Warn("REDIS", "Keyspace notifications not properly configured for expiry events!")
		} else if setting, ok := val[1].(string); !ok ||
			!strings.Contains(setting, "x") || !strings.Contains(setting, "E") {
			s.Logger.Warn("REDIS", "Keyspace notifications not properly configured for expiry events!")
		}
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	s.Logger.Info("REDIS", fmt.Sprintf("Subscribed to Redis keyevent expired notifications (DB %d)", rdb.Options().DB))

	go func() {
		for msg := range pubsub.Channel() {
			if !strings.HasPrefix(msg.Payload, "number_lock:") {
				continue
			}
			s.Logger.Info("REDIS", fmt.Sprintf("Received expired number lock: %s", msg.Payload))
			s.handleExpiredLock(msg.Payload)
		}
	}()
}

func (s *Sweeper) handleExpiredLock(key string) {
	// Key layout: number_lock:<raffleID>:<NNNN>
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		s.Logger.Warn("SWEEP", fmt.Sprintf("Unexpected lock key format: %s", key))
		return
	}
	raffleID := parts[1]
	number, err := strconv.Atoi(parts[2])
	if err != nil {
		s.Logger.Warn("SWEEP", fmt.Sprintf("Unexpected number in lock key %s: %v", key, err))
		return
	}

	ticket, err := s.DB.GetTicket(raffleID, number)
	if err != nil {
		if err != models.ErrNotFound {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to look up ticket %s/%s: %v",
				raffleID, models.DisplayNumber(number), err))
		}
		return
	}
	if ticket.PurchaseID == "" || ticket.State != models.TicketStateReserved {
		// Already sold, in verification, or released. Nothing to reclaim.
		return
	}

	swept, err := s.DB.SweepPurchase(ticket.PurchaseID, time.Now())
	if err != nil {
		s.Logger.Error("SWEEP", fmt.Sprintf("Failed to sweep purchase %s: %v", ticket.PurchaseID, err))
		return
	}
	if swept == nil {
		// Proof arrived first, or another trigger already swept it.
		return
	}
	s.Logger.LogSweep(swept.Purchase.PurchaseID, fmt.Sprintf(
		"Lock expiry reclaimed %d tickets (raffle %s)", len(swept.Numbers), raffleID))
	s.publishExpired(*swept)
}

func (s *Sweeper) publishExpired(sp models.SweptPurchase) {
	event := models.NewRaffleEvent(models.EventPurchaseExpired, sp.Purchase.RaffleID)
	event.PurchaseID = sp.Purchase.PurchaseID
	event.Numbers = sp.Numbers
	event.State = models.PurchaseStateExpired

	if s.Emitter != nil {
		s.Emitter.Emit(event)
	}
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishEvent(s.ExpiredTopic, event); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s: %v", s.ExpiredTopic, err))
	}
}
