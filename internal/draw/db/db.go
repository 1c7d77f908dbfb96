package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
)

// DB persists draw records next to the ticket ledger.
type DB struct {
	Bun *bun.DB
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

// SoldTickets returns a raffle's SOLD tickets ordered by number. The order is
// part of the draw contract: the winning index selects from this exact list.
func (d *DB) SoldTickets(raffleID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("raffle_id = ?", raffleID).
		Where("state = ?", models.TicketStateSold).
		Order("number ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// CreateDraw records the draw and finishes the raffle in one transaction.
// A raffle can only ever have one draw.
func (d *DB) CreateDraw(draw *models.Draw) error {
	return d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.Draw)(nil)).
			Where("raffle_id = ?", draw.RaffleID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return models.ErrAlreadyDrawn
		}

		if _, err := tx.NewInsert().Model(draw).Exec(ctx); err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.Raffle)(nil)).
			Set("state = ?", models.RaffleStateFinished).
			Where("raffle_id = ?", draw.RaffleID).
			Exec(ctx)
		return err
	})
}

func (d *DB) GetDraw(drawID string) (*models.Draw, error) {
	var draw models.Draw
	err := d.Bun.NewSelect().
		Model(&draw).
		Where("draw_id = ?", drawID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (d *DB) GetDrawByRaffle(raffleID string) (*models.Draw, error) {
	var draw models.Draw
	err := d.Bun.NewSelect().
		Model(&draw).
		Where("raffle_id = ?", raffleID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}
