package draw_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/draw"
	"ms-raffle/internal/models"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetRaffle(id string) (*models.Raffle, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Raffle), args.Error(1)
}

func (m *MockDBLayer) SoldTickets(raffleID string) ([]models.Ticket, error) {
	args := m.Called(raffleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockDBLayer) CreateDraw(d *models.Draw) error {
	args := m.Called(d)
	return args.Error(0)
}

func (m *MockDBLayer) GetDraw(drawID string) (*models.Draw, error) {
	args := m.Called(drawID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draw), args.Error(1)
}

func (m *MockDBLayer) GetDrawByRaffle(raffleID string) (*models.Draw, error) {
	args := m.Called(raffleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draw), args.Error(1)
}

type noopLogger struct{}

func (noopLogger) Info(category, message string)  {}
func (noopLogger) Warn(category, message string)  {}
func (noopLogger) Error(category, message string) {}

func soldTickets(numbers ...int) []models.Ticket {
	tickets := make([]models.Ticket, len(numbers))
	for i, n := range numbers {
		tickets[i] = models.Ticket{
			RaffleID:      "raffle-1",
			Number:        n,
			State:         models.TicketStateSold,
			ParticipantID: "participant-1",
		}
	}
	return tickets
}

func TestDrawRecordsWinnerFromSoldTickets(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "raffle.draw.completed", noopLogger{})

	sold := soldTickets(3, 17, 256, 4095)
	mockDB.On("GetRaffle", "raffle-1").Return(&models.Raffle{RaffleID: "raffle-1", State: models.RaffleStateActive}, nil)
	mockDB.On("GetDrawByRaffle", "raffle-1").Return(nil, models.ErrNotFound)
	mockDB.On("SoldTickets", "raffle-1").Return(sold, nil)
	mockDB.On("CreateDraw", mock.AnythingOfType("*models.Draw")).Return(nil)

	result, err := service.Draw("raffle-1", "published-seed")
	require.NoError(t, err)

	assert.Equal(t, "published-seed", result.Seed)
	assert.Equal(t, models.DrawMethodFNV1aLCG, result.Method)
	assert.Equal(t, []int{3, 17, 256, 4095}, result.SoldSnapshot)
	assert.Contains(t, result.SoldSnapshot, result.WinningNumber)
	assert.Equal(t, "participant-1", result.WinnerID)

	// Supplying the same seed over the same snapshot yields the same winner.
	expected := sold[draw.WinningIndex("published-seed", len(sold))]
	assert.Equal(t, expected.Number, result.WinningNumber)
}

func TestDrawGeneratesSeedWhenAbsent(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	mockDB.On("GetRaffle", "raffle-1").Return(&models.Raffle{RaffleID: "raffle-1", State: models.RaffleStateActive}, nil)
	mockDB.On("GetDrawByRaffle", "raffle-1").Return(nil, models.ErrNotFound)
	mockDB.On("SoldTickets", "raffle-1").Return(soldTickets(1, 2, 3), nil)
	mockDB.On("CreateDraw", mock.AnythingOfType("*models.Draw")).Return(nil)

	result, err := service.Draw("raffle-1", "")
	require.NoError(t, err)
	assert.Len(t, result.Seed, 32)
}

func TestDrawFailsWithoutSoldTickets(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	mockDB.On("GetRaffle", "raffle-1").Return(&models.Raffle{RaffleID: "raffle-1", State: models.RaffleStateActive}, nil)
	mockDB.On("GetDrawByRaffle", "raffle-1").Return(nil, models.ErrNotFound)
	mockDB.On("SoldTickets", "raffle-1").Return([]models.Ticket{}, nil)

	_, err := service.Draw("raffle-1", "")
	assert.ErrorIs(t, err, models.ErrNoSoldTickets)
	mockDB.AssertNotCalled(t, "CreateDraw", mock.Anything)
}

func TestDrawRefusesSecondDraw(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	mockDB.On("GetRaffle", "raffle-1").Return(&models.Raffle{RaffleID: "raffle-1", State: models.RaffleStateFinished}, nil)
	mockDB.On("GetDrawByRaffle", "raffle-1").Return(&models.Draw{DrawID: "draw-1", RaffleID: "raffle-1"}, nil)

	_, err := service.Draw("raffle-1", "")
	assert.ErrorIs(t, err, models.ErrAlreadyDrawn)
}

func TestVerifyReproducibleDraw(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	snapshot := []int{3, 17, 256, 4095}
	winning := snapshot[draw.WinningIndex("audit-seed", len(snapshot))]
	mockDB.On("GetDraw", "draw-1").Return(&models.Draw{
		DrawID:        "draw-1",
		Seed:          "audit-seed",
		Method:        models.DrawMethodFNV1aLCG,
		WinningNumber: winning,
		SoldSnapshot:  snapshot,
	}, nil)

	verification, err := service.Verify("draw-1")
	require.NoError(t, err)
	assert.True(t, verification.Reproducible)
	assert.Equal(t, winning, verification.RecomputedNumber)
}

func TestVerifyDetectsTamperedWinner(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	snapshot := []int{3, 17, 256, 4095}
	honest := snapshot[draw.WinningIndex("audit-seed", len(snapshot))]
	tampered := snapshot[0]
	if tampered == honest {
		tampered = snapshot[1]
	}
	mockDB.On("GetDraw", "draw-1").Return(&models.Draw{
		DrawID:        "draw-1",
		Seed:          "audit-seed",
		Method:        models.DrawMethodFNV1aLCG,
		WinningNumber: tampered,
		SoldSnapshot:  snapshot,
	}, nil)

	verification, err := service.Verify("draw-1")
	require.NoError(t, err)
	assert.False(t, verification.Reproducible)
	assert.Equal(t, honest, verification.RecomputedNumber)
	assert.Equal(t, tampered, verification.RecordedNumber)
}

func TestVerifyUnknownDraw(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := draw.NewService(mockDB, nil, nil, "", noopLogger{})

	mockDB.On("GetDraw", "missing").Return(nil, models.ErrNotFound)

	_, err := service.Verify("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
