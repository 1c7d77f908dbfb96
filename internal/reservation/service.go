package reservation

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ms-raffle/internal/models"
	"ms-raffle/internal/voucher"
)

type DBLayer interface {
	GetRaffle(id string) (*models.Raffle, error)
	ReserveNumbers(raffle *models.Raffle, numbers []int, info models.ParticipantInfo) (*models.Purchase, []models.Ticket, error)
	GetPurchaseByID(id string) (*models.Purchase, error)
	GetPurchaseByReference(reference string) (*models.Purchase, error)
	GetParticipant(id string) (*models.Participant, error)
	TicketsByPurchase(purchaseID string) ([]models.Ticket, error)
	TakenTickets(raffleID string) ([]models.Ticket, error)
}

type NumberLock interface {
	LockNumbers(raffleID string, numbers []int, purchaseID string, ttl time.Duration) (bool, []int, error)
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

// Service is the reservation allocator: it validates a request, takes the
// Redis number-lock fence, then hands the claim to the ledger transaction.
type Service struct {
	DB            DBLayer
	Redis         NumberLock
	Kafka         KafkaPublisher
	Emitter       EventEmitter
	ReservedTopic string
	logger        Logger
}

func NewService(db DBLayer, redis NumberLock, kafka KafkaPublisher, emitter EventEmitter, reservedTopic string, logger Logger) *Service {
	return &Service{
		DB:            db,
		Redis:         redis,
		Kafka:         kafka,
		Emitter:       emitter,
		ReservedTopic: reservedTopic,
		logger:        logger,
	}
}

// Reserve claims a set of numbers for a new purchase. All-or-nothing: on any
// conflict the whole request fails and the conflicting numbers are reported.
func (s *Service) Reserve(raffleID string, req models.ReserveRequest) (*models.ReserveResponse, error) {
	raffle, err := s.DB.GetRaffle(raffleID)
	if err != nil {
		return nil, err
	}
	if raffle.State != models.RaffleStateActive {
		return nil, models.ErrRaffleNotActive
	}

	numbers, err := validateNumbers(raffle, req.Numbers)
	if err != nil {
		return nil, err
	}
	if err := validateParticipant(req.Participant); err != nil {
		return nil, err
	}

	purchaseID := uuid.NewString()

	// Front-line fence: cheap rejection of contended numbers before the
	// ledger transaction. The lock TTL matches the reservation hold so an
	// abandoned purchase's locks vanish on their own.
	ok, conflicts, err := s.Redis.LockNumbers(raffleID, numbers, purchaseID, raffle.HoldDuration())
	if err != nil {
		return nil, fmt.Errorf("redis lock error: %w", err)
	}
	if !ok {
		return nil, &models.ConflictError{Numbers: conflicts}
	}

	purchase, tickets, err := s.DB.ReserveNumbers(raffle, numbers, req.Participant)
	if err != nil {
		// The ledger rejected the claim; roll back the fence.
		if unlockErr := s.Redis.UnlockNumbers(raffleID, numbers, purchaseID); unlockErr != nil {
			s.logger.Warn("RESERVE", fmt.Sprintf("Failed to unlock numbers for raffle %s: %v", raffleID, unlockErr))
		}
		return nil, err
	}

	event := models.NewRaffleEvent(models.EventTicketsReserved, raffleID)
	event.PurchaseID = purchase.PurchaseID
	event.Numbers = numbers
	event.State = purchase.State
	s.publish(s.ReservedTopic, event)

	s.logger.Info("RESERVE", fmt.Sprintf(
		"Reserved %d tickets for purchase %s (raffle %s)", len(tickets), purchase.PurchaseID, raffleID))

	return &models.ReserveResponse{
		PurchaseID:       purchase.PurchaseID,
		RaffleID:         raffleID,
		Numbers:          numbers,
		MontoTotal:       purchase.TotalAmount,
		FechaVencimiento: purchase.ExpiresAt,
	}, nil
}

// PurchaseStatus returns the masked public view of a purchase. Confirmed
// purchases carry a voucher QR encoding the winning-check payload.
func (s *Service) PurchaseStatus(purchaseID, reference string) (*models.PurchaseSummary, error) {
	var purchase *models.Purchase
	var err error
	switch {
	case purchaseID != "":
		purchase, err = s.DB.GetPurchaseByID(purchaseID)
	case reference != "":
		purchase, err = s.DB.GetPurchaseByReference(reference)
	default:
		return nil, models.NewValidationError("purchase id or referencia required")
	}
	if err != nil {
		return nil, err
	}

	participant, err := s.DB.GetParticipant(purchase.ParticipantID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.DB.TicketsByPurchase(purchase.PurchaseID)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(tickets))
	for i, t := range tickets {
		numbers[i] = models.DisplayNumber(t.Number)
	}

	summary := &models.PurchaseSummary{
		PurchaseID:       purchase.PurchaseID,
		RaffleID:         purchase.RaffleID,
		Numbers:          numbers,
		Estado:           purchase.State,
		MontoTotal:       purchase.TotalAmount,
		FechaVencimiento: purchase.ExpiresAt,
		Nombre:           participant.Nombre,
		Celular:          models.MaskPhone(participant.Celular),
		Email:            models.MaskEmail(participant.Email),
		Referencia:       purchase.PaymentReference,
	}

	if purchase.State == models.PurchaseStateConfirmed {
		qr, err := voucher.GeneratePurchaseQR(purchase, tickets)
		if err != nil {
			s.logger.Warn("RESERVE", fmt.Sprintf("Failed to generate voucher QR for %s: %v", purchase.PurchaseID, err))
		} else {
			summary.VoucherQR = qr
		}
	}

	return summary, nil
}

// Availability returns the occupancy map for a raffle's number grid: taken
// numbers with their state, plus the total so the client can render the rest
// as available.
func (s *Service) Availability(raffleID string) (map[string]interface{}, error) {
	raffle, err := s.DB.GetRaffle(raffleID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.DB.TakenTickets(raffleID)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]string, len(tickets))
	for _, t := range tickets {
		taken[models.DisplayNumber(t.Number)] = t.State
	}

	return map[string]interface{}{
		"raffle_id":     raffle.RaffleID,
		"total_tickets": raffle.TotalTickets,
		"unit_price":    raffle.UnitPrice,
		"state":         raffle.State,
		"taken":         taken,
	}, nil
}

func (s *Service) publish(topic string, event models.RaffleEvent) {
	if s.Emitter != nil {
		s.Emitter.Emit(event)
	}
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishEvent(topic, event); err != nil {
		// Event delivery is best-effort; the reservation already committed.
		if payload, jsonErr := json.Marshal(event); jsonErr == nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s: %v (%s)", topic, err, payload))
		} else {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s: %v", topic, err))
		}
	}
}

func validateNumbers(raffle *models.Raffle, numbers []int) ([]int, error) {
	if len(numbers) == 0 {
		return nil, models.NewValidationError("at least one ticket number is required")
	}
	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if !raffle.NumberInRange(n) {
			return nil, models.NewValidationError(
				"number %d out of range [0, %d]", n, raffle.TotalTickets-1)
		}
		if seen[n] {
			return nil, models.NewValidationError("duplicate number %d in request", n)
		}
		seen[n] = true
	}
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	return sorted, nil
}

func validateParticipant(info models.ParticipantInfo) error {
	if info.Nombre == "" {
		return models.NewValidationError("participant nombre is required")
	}
	if info.Celular == "" {
		return models.NewValidationError("participant celular is required")
	}
	return nil
}
