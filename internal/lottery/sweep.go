package lottery

import (
	"context"
	"fmt"
	"time"

	"lotteria/internal/models"
)

type expiredTicket struct {
	id           int64
	ticketNumber int
	drawName     string
	externalID   string
}

// Sweep reverts every pending_payment ticket reserved before now-window
// back to available and returns how many it reverted. The revert is
// conditioned on the ticket still being pending_payment, so a concurrent
// approval between the select and the write is never clobbered. Expiry
// notifications go out after commit, best effort.
//
// The sweep never schedules itself; callers invoke it on a fixed cadence.
func (s *Service) Sweep(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: expiry window must be positive", ErrValidation)
	}
	cutoff := now.Add(-window).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT t.id, t.ticket_number, d.name, COALESCE(t.user_external_id, '')
		FROM tickets t
		JOIN draws d ON t.draw_id = d.id
		WHERE t.status = ? AND t.reserved_at < ?`,
		models.StatusPendingPayment, cutoff)
	if err != nil {
		return 0, err
	}

	var expired []expiredTicket
	for rows.Next() {
		var e expiredTicket
		if err := rows.Scan(&e.id, &e.ticketNumber, &e.drawName, &e.externalID); err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	reverted := make([]expiredTicket, 0, len(expired))
	for _, e := range expired {
		res, err := tx.ExecContext(ctx, `
			UPDATE tickets
			SET status = ?, user_external_id = NULL, user_display_name = NULL, reserved_at = NULL
			WHERE id = ? AND status = ?`,
			models.StatusAvailable, e.id, models.StatusPendingPayment)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			reverted = append(reverted, e)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if len(reverted) > 0 {
		s.log.Info().Int("reverted", len(reverted)).Msg("expiry sweep reverted stale reservations")
	}
	for _, e := range reverted {
		s.notifyBestEffort(e.externalID, fmt.Sprintf(
			"⏰ Your reservation for ticket #%d in draw '%s' has expired due to non-payment. The ticket is now available again.",
			e.ticketNumber, e.drawName))
	}
	return len(reverted), nil
}
