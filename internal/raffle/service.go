package raffle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-raffle/internal/models"
)

type DBLayer interface {
	CreateRaffle(raffle *models.Raffle) error
	GetRaffle(id string) (*models.Raffle, error)
	ListRaffles(state string) ([]models.Raffle, error)
	TransitionState(raffleID, fromState, toState string) error
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// CreateRaffleRequest is the admin payload for a new raffle.
type CreateRaffleRequest struct {
	Name         string    `json:"name"`
	TotalTickets int       `json:"total_tickets"`
	UnitPrice    float64   `json:"unit_price"`
	MaxPerPerson int       `json:"max_per_person,omitempty"`
	HoldMinutes  int       `json:"hold_minutes,omitempty"`
	DrawDate     time.Time `json:"draw_date,omitempty"`
}

// Service manages the raffle catalog and its lifecycle. FINISHED is reached
// only through a completed draw, never set directly.
type Service struct {
	DB                 DBLayer
	DefaultHoldMinutes int
	logger             Logger
}

func NewService(db DBLayer, defaultHoldMinutes int, logger Logger) *Service {
	return &Service{
		DB:                 db,
		DefaultHoldMinutes: defaultHoldMinutes,
		logger:             logger,
	}
}

// Create registers a new raffle in DRAFT.
func (s *Service) Create(req CreateRaffleRequest) (*models.Raffle, error) {
	if req.Name == "" {
		return nil, models.NewValidationError("raffle name is required")
	}
	if req.TotalTickets < models.MinRaffleTickets || req.TotalTickets > models.MaxRaffleTickets {
		return nil, models.NewValidationError(
			"total_tickets must be between %d and %d", models.MinRaffleTickets, models.MaxRaffleTickets)
	}
	if req.UnitPrice <= 0 {
		return nil, models.NewValidationError("unit_price must be positive")
	}
	if req.MaxPerPerson < 0 {
		return nil, models.NewValidationError("max_per_person cannot be negative")
	}

	holdMinutes := req.HoldMinutes
	if holdMinutes <= 0 {
		holdMinutes = s.DefaultHoldMinutes
	}

	raffle := &models.Raffle{
		RaffleID:     uuid.NewString(),
		Name:         req.Name,
		TotalTickets: req.TotalTickets,
		UnitPrice:    req.UnitPrice,
		MaxPerPerson: req.MaxPerPerson,
		HoldMinutes:  holdMinutes,
		State:        models.RaffleStateDraft,
		DrawDate:     req.DrawDate,
		CreatedAt:    time.Now(),
	}
	if err := s.DB.CreateRaffle(raffle); err != nil {
		return nil, err
	}

	s.logger.Info("RAFFLE", fmt.Sprintf(
		"Created raffle %s (%q, %d tickets at %.2f)", raffle.RaffleID, raffle.Name, raffle.TotalTickets, raffle.UnitPrice))
	return raffle, nil
}

func (s *Service) Get(raffleID string) (*models.Raffle, error) {
	return s.DB.GetRaffle(raffleID)
}

func (s *Service) List(state string) ([]models.Raffle, error) {
	return s.DB.ListRaffles(state)
}

// allowedTransitions are the admin-reachable lifecycle moves.
var allowedTransitions = map[string][]string{
	models.RaffleStateDraft:  {models.RaffleStateActive, models.RaffleStateCancelled},
	models.RaffleStateActive: {models.RaffleStatePaused, models.RaffleStateCancelled},
	models.RaffleStatePaused: {models.RaffleStateActive, models.RaffleStateCancelled},
}

// Transition moves a raffle to a new admin-selected state.
func (s *Service) Transition(raffleID, toState string) (*models.Raffle, error) {
	raffle, err := s.DB.GetRaffle(raffleID)
	if err != nil {
		return nil, err
	}

	permitted := false
	for _, allowed := range allowedTransitions[raffle.State] {
		if allowed == toState {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, models.ErrInvalidStateTransition
	}

	if err := s.DB.TransitionState(raffleID, raffle.State, toState); err != nil {
		return nil, err
	}
	raffle.State = toState

	s.logger.Info("RAFFLE", fmt.Sprintf("Raffle %s transitioned to %s", raffleID, toState))
	return raffle, nil
}
