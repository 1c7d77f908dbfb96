package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
)

// DB is the raffle catalog storage.
type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateRaffle(raffle *models.Raffle) error {
	_, err := d.Bun.NewInsert().
		Model(raffle).
		Exec(context.Background())
	return err
}

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

// ListRaffles returns raffles newest first, optionally filtered by state.
func (d *DB) ListRaffles(state string) ([]models.Raffle, error) {
	var raffles []models.Raffle
	query := d.Bun.NewSelect().
		Model(&raffles).
		Order("created_at DESC")
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if err := query.Scan(context.Background()); err != nil {
		return nil, err
	}
	return raffles, nil
}

// TransitionState moves a raffle between lifecycle states. The update is
// conditional on the expected current state; zero rows means a concurrent
// transition won.
func (d *DB) TransitionState(raffleID, fromState, toState string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Raffle)(nil)).
		Set("state = ?", toState).
		Where("raffle_id = ?", raffleID).
		Where("state = ?", fromState).
		Exec(context.Background())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrInvalidStateTransition
	}
	return nil
}
