package lottery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"lotteria/internal/models"
)

type drawnWinner struct {
	ticketID     int64
	ticketNumber int
	externalID   string
	place        int
	prize        float64
}

// Execute runs the one-shot winner selection for a draw: it snapshots the
// approved tickets, samples up to MaxWinners of them uniformly without
// replacement, records Winner rows, marks the selected tickets won and
// flips is_drawn — all in one transaction. Winner notifications go out
// after commit, best effort.
func (s *Service) Execute(ctx context.Context, drawID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var name string
	var price float64
	var isDrawn bool
	err = tx.QueryRowContext(ctx, "SELECT name, ticket_price, is_drawn FROM draws WHERE id = ?", drawID).
		Scan(&name, &price, &isDrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	if err != nil {
		return err
	}
	if isDrawn {
		return fmt.Errorf("%w: draw %d", ErrAlreadyExecuted, drawID)
	}

	approved, err := approvedSnapshot(ctx, tx, drawID)
	if err != nil {
		return err
	}
	if len(approved) == 0 {
		return fmt.Errorf("%w: draw %d has no approved tickets", ErrNoEligibleTickets, drawID)
	}

	pool := price * float64(len(approved))
	count := min(s.cfg.MaxWinners, len(approved))

	rand.Shuffle(len(approved), func(i, j int) {
		approved[i], approved[j] = approved[j], approved[i]
	})
	winners := approved[:count]

	now := time.Now().UTC()
	for i := range winners {
		winners[i].place = i + 1
		winners[i].prize = round2(pool * s.cfg.PrizeSplit[i])
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO winners (draw_id, ticket_id, place, prize_amount, won_at) VALUES (?, ?, ?, ?, ?)",
			drawID, winners[i].ticketID, winners[i].place, winners[i].prize, now.Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tickets SET status = ? WHERE id = ? AND status = ?",
			models.StatusWon, winners[i].ticketID, models.StatusApproved); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE draws SET is_drawn = 1, draw_time = ? WHERE id = ?", now.Unix(), drawID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info().Int64("draw_id", drawID).Int("winners", count).Float64("pool", pool).Msg("draw executed")

	for _, w := range winners {
		s.notifyBestEffort(w.externalID, fmt.Sprintf(
			"🎉 Congratulations! You won $%.2f in the draw '%s'!\nYour ticket: #%d\nPlace: %s",
			w.prize, name, w.ticketNumber, models.Ordinal(w.place)))
	}
	return nil
}

func approvedSnapshot(ctx context.Context, tx *sql.Tx, drawID int64) ([]drawnWinner, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, ticket_number, COALESCE(user_external_id, '')
		FROM tickets WHERE draw_id = ? AND status = ?`,
		drawID, models.StatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approved []drawnWinner
	for rows.Next() {
		var w drawnWinner
		if err := rows.Scan(&w.ticketID, &w.ticketNumber, &w.externalID); err != nil {
			return nil, err
		}
		approved = append(approved, w)
	}
	return approved, rows.Err()
}

// Reset deletes every winner and ticket of the draw and clears the drawn
// flag. The ticket pool is not regenerated; the draw row survives empty.
func (s *Service) Reset(ctx context.Context, drawID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM draws WHERE id = ?", drawID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM winners WHERE draw_id = ?", drawID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE draw_id = ?", drawID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE draws SET is_drawn = 0, draw_time = NULL WHERE id = ?", drawID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Int64("draw_id", drawID).Msg("draw reset")
	return nil
}

// DeleteWinner removes a single winner row. The linked ticket survives and
// drops back from won to approved so the stored status stays consistent
// with the winners table.
func (s *Service) DeleteWinner(ctx context.Context, winnerID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ticketID int64
	err = tx.QueryRowContext(ctx, "SELECT ticket_id FROM winners WHERE id = ?", winnerID).Scan(&ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: winner %d", ErrNotFound, winnerID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM winners WHERE id = ?", winnerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE tickets SET status = ? WHERE id = ? AND status = ?",
		models.StatusApproved, ticketID, models.StatusWon); err != nil {
		return err
	}
	return tx.Commit()
}
