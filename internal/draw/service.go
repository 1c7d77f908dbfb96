package draw

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type DBLayer interface {
	GetRaffle(id string) (*models.Raffle, error)
	SoldTickets(raffleID string) ([]models.Ticket, error)
	CreateDraw(draw *models.Draw) error
	GetDraw(drawID string) (*models.Draw, error)
	GetDrawByRaffle(raffleID string) (*models.Draw, error)
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

// Service runs and audits winner draws. Only SOLD tickets participate; the
// seed, method name and sold snapshot are stored with the result so anyone
// can recompute the winner later.
type Service struct {
	DB        DBLayer
	Kafka     KafkaPublisher
	Emitter   EventEmitter
	DrawTopic string
	logger    Logger
}

func NewService(db DBLayer, kafka KafkaPublisher, emitter EventEmitter, drawTopic string, logger Logger) *Service {
	return &Service{
		DB:        db,
		Kafka:     kafka,
		Emitter:   emitter,
		DrawTopic: drawTopic,
		logger:    logger,
	}
}

// Draw selects the winner for a raffle. An empty seed gets a fresh random one;
// supplying a seed makes the draw reproducible in advance (e.g. a publicly
// announced lottery result used as seed).
func (s *Service) Draw(raffleID, seed string) (*models.Draw, error) {
	raffle, err := s.DB.GetRaffle(raffleID)
	if err != nil {
		return nil, err
	}

	if _, err := s.DB.GetDrawByRaffle(raffleID); err == nil {
		return nil, models.ErrAlreadyDrawn
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	sold, err := s.DB.SoldTickets(raffleID)
	if err != nil {
		return nil, err
	}
	if len(sold) == 0 {
		return nil, models.ErrNoSoldTickets
	}

	if seed == "" {
		seed = utils.GenerateSeed()
	}

	index := WinningIndex(seed, len(sold))
	winner := sold[index]

	snapshot := make([]int, len(sold))
	for i, t := range sold {
		snapshot[i] = t.Number
	}

	draw := &models.Draw{
		DrawID:        uuid.NewString(),
		RaffleID:      raffle.RaffleID,
		Seed:          seed,
		Method:        models.DrawMethodFNV1aLCG,
		WinningNumber: winner.Number,
		WinnerID:      winner.ParticipantID,
		SoldSnapshot:  snapshot,
		CreatedAt:     time.Now(),
	}
	if err := s.DB.CreateDraw(draw); err != nil {
		return nil, err
	}

	event := models.NewRaffleEvent(models.EventDrawCompleted, raffleID)
	event.DrawID = draw.DrawID
	event.Numbers = []int{draw.WinningNumber}
	s.publish(event)

	s.logger.Info("DRAW", fmt.Sprintf(
		"Raffle %s drawn: winning number %s out of %d sold",
		raffleID, models.DisplayNumber(draw.WinningNumber), len(sold)))
	return draw, nil
}

// Verify recomputes a recorded draw from its stored seed and snapshot and
// reports whether the recorded winner matches.
func (s *Service) Verify(drawID string) (*models.DrawVerification, error) {
	draw, err := s.DB.GetDraw(drawID)
	if err != nil {
		return nil, err
	}

	verification := &models.DrawVerification{
		DrawID:         draw.DrawID,
		Seed:           draw.Seed,
		Method:         draw.Method,
		RecordedNumber: draw.WinningNumber,
	}
	if draw.Method != models.DrawMethodFNV1aLCG || len(draw.SoldSnapshot) == 0 {
		return verification, nil
	}

	index := WinningIndex(draw.Seed, len(draw.SoldSnapshot))
	verification.RecomputedNumber = draw.SoldSnapshot[index]
	verification.Reproducible = verification.RecomputedNumber == draw.WinningNumber
	return verification, nil
}

func (s *Service) publish(event models.RaffleEvent) {
	if s.Emitter != nil {
		s.Emitter.Emit(event)
	}
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishEvent(s.DrawTopic, event); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s: %v", s.DrawTopic, err))
	}
}
