package payment

import (
	"fmt"
	"strings"
	"time"

	"ms-raffle/internal/models"
)

type DBLayer interface {
	GetPurchaseByID(id string) (*models.Purchase, error)
	TicketsByPurchase(purchaseID string) ([]models.Ticket, error)
	SubmitProof(purchaseID, referencia, voucher string, now time.Time) (*models.Purchase, error)
	Decide(purchaseID string, approve bool, notas string, now time.Time) (*models.Purchase, error)
	AttachPaymentIntent(purchaseID, intentID string) error
}

type NumberLock interface {
	UnlockNumbers(raffleID string, numbers []int, purchaseID string) error
}

type KafkaPublisher interface {
	PublishEvent(topic string, event models.RaffleEvent) error
}

type EventEmitter interface {
	Emit(event models.RaffleEvent)
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

type Topics struct {
	Proof   string
	Decided string
	Expired string
}

// Service drives the purchase payment lifecycle. The ledger transaction does
// the state transition; this layer validates input, keeps the Redis number
// fence in line with the outcome, and publishes the lifecycle events.
type Service struct {
	DB            DBLayer
	Redis         NumberLock
	Kafka         KafkaPublisher
	Emitter       EventEmitter
	Topics        Topics
	WebhookSecret string
	logger        Logger
}

func NewService(db DBLayer, redis NumberLock, kafka KafkaPublisher, emitter EventEmitter, topics Topics, webhookSecret string, logger Logger) *Service {
	return &Service{
		DB:            db,
		Redis:         redis,
		Kafka:         kafka,
		Emitter:       emitter,
		Topics:        topics,
		WebhookSecret: webhookSecret,
		logger:        logger,
	}
}

// SubmitProof attaches a payment reference to a pending purchase and moves it
// into verification. A purchase whose hold already elapsed is expired instead
// and its numbers are released.
func (s *Service) SubmitProof(purchaseID string, req models.ProofRequest) (*models.Purchase, error) {
	if strings.TrimSpace(req.Referencia) == "" {
		return nil, models.NewValidationError("referencia is required")
	}

	// Snapshot the tickets before the transition: on expiry the ledger
	// detaches them from the purchase.
	tickets, err := s.DB.TicketsByPurchase(purchaseID)
	if err != nil {
		return nil, err
	}

	purchase, err := s.DB.SubmitProof(purchaseID, req.Referencia, req.Voucher, time.Now())
	if err != nil {
		if err == models.ErrReservationExpired {
			s.releaseNumbers(purchaseID, tickets)
			s.publishExpired(purchaseID, tickets)
		}
		return nil, err
	}

	event := models.NewRaffleEvent(models.EventProofSubmitted, purchase.RaffleID)
	event.PurchaseID = purchase.PurchaseID
	event.Numbers = ticketNumbers(tickets)
	event.State = purchase.State
	event.Reference = purchase.PaymentReference
	s.publish(s.Topics.Proof, event)

	s.logger.Info("PAYMENT", fmt.Sprintf(
		"Purchase %s moved to verification (referencia %s)", purchase.PurchaseID, purchase.PaymentReference))
	return purchase, nil
}

// Decide applies an admin verdict to a purchase in verification. Approval
// makes the tickets SOLD; rejection returns the numbers to the pool.
func (s *Service) Decide(purchaseID string, req models.DecisionRequest) (*models.Purchase, error) {
	var approve bool
	switch strings.ToLower(strings.TrimSpace(req.Accion)) {
	case "aprobar":
		approve = true
	case "rechazar":
		approve = false
	default:
		return nil, models.NewValidationError("accion must be 'aprobar' or 'rechazar'")
	}

	tickets, err := s.DB.TicketsByPurchase(purchaseID)
	if err != nil {
		return nil, err
	}

	purchase, err := s.DB.Decide(purchaseID, approve, req.Notas, time.Now())
	if err != nil {
		return nil, err
	}

	// The fence has done its job either way: SOLD tickets are blocked by the
	// ledger itself, and rejected numbers must become reservable again.
	s.releaseNumbers(purchaseID, tickets)

	event := models.NewRaffleEvent(models.EventPurchaseDecided, purchase.RaffleID)
	event.PurchaseID = purchase.PurchaseID
	event.Numbers = ticketNumbers(tickets)
	event.State = purchase.State
	s.publish(s.Topics.Decided, event)

	s.logger.Info("PAYMENT", fmt.Sprintf("Purchase %s decided: %s", purchase.PurchaseID, purchase.State))
	return purchase, nil
}

func (s *Service) releaseNumbers(purchaseID string, tickets []models.Ticket) {
	if len(tickets) == 0 {
		return
	}
	raffleID := tickets[0].RaffleID
	if err := s.Redis.UnlockNumbers(raffleID, ticketNumbers(tickets), purchaseID); err != nil {
		s.logger.Warn("PAYMENT", fmt.Sprintf(
			"Failed to release number locks for purchase %s: %v", purchaseID, err))
	}
}

func (s *Service) publishExpired(purchaseID string, tickets []models.Ticket) {
	if len(tickets) == 0 {
		return
	}
	event := models.NewRaffleEvent(models.EventPurchaseExpired, tickets[0].RaffleID)
	event.PurchaseID = purchaseID
	event.Numbers = ticketNumbers(tickets)
	event.State = models.PurchaseStateExpired
	s.publish(s.Topics.Expired, event)
}

func (s *Service) publish(topic string, event models.RaffleEvent) {
	if s.Emitter != nil {
		s.Emitter.Emit(event)
	}
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishEvent(topic, event); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s: %v", topic, err))
	}
}

func ticketNumbers(tickets []models.Ticket) []int {
	numbers := make([]int, len(tickets))
	for i, t := range tickets {
		numbers[i] = t.Number
	}
	return numbers
}
