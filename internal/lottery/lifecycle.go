package lottery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lotteria/internal/models"
)

// Reserve moves an available ticket to pending_payment on behalf of a user.
// The status guard lives in the UPDATE itself, so of two racing requests
// for the same ticket exactly one succeeds; the loser gets
// ErrTicketUnavailable.
func (s *Service) Reserve(ctx context.Context, drawID int64, ticketNumber int, externalID, displayName string) error {
	if externalID == "" || displayName == "" {
		return fmt.Errorf("%w: external id and display name are required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var isActive, isDrawn bool
	err = tx.QueryRowContext(ctx, "SELECT is_active, is_drawn FROM draws WHERE id = ?", drawID).Scan(&isActive, &isDrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	if err != nil {
		return err
	}
	if !isActive || isDrawn {
		return fmt.Errorf("%w: draw %d is not accepting reservations", ErrTicketUnavailable, drawID)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET status = ?, user_external_id = ?, user_display_name = ?, reserved_at = ?
		WHERE draw_id = ? AND ticket_number = ? AND status = ?`,
		models.StatusPendingPayment, externalID, displayName, time.Now().UTC().Unix(),
		drawID, ticketNumber, models.StatusAvailable)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM tickets WHERE draw_id = ? AND ticket_number = ?", drawID, ticketNumber).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: ticket #%d in draw %d", ErrNotFound, ticketNumber, drawID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: ticket #%d", ErrTicketUnavailable, ticketNumber)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Int64("draw_id", drawID).Int("ticket", ticketNumber).Str("external_id", externalID).Msg("ticket reserved")
	return nil
}

// Approve confirms payment on a pending_payment ticket.
func (s *Service) Approve(ctx context.Context, ticketID int64) error {
	return s.guardedUpdate(ctx, ticketID, models.StatusPendingPayment, `
		UPDATE tickets SET status = ?, approved_at = ?
		WHERE id = ? AND status = ?`,
		models.StatusApproved, time.Now().UTC().Unix(), ticketID, models.StatusPendingPayment)
}

// Reject reverts a pending_payment ticket to available, clearing the
// holder fields.
func (s *Service) Reject(ctx context.Context, ticketID int64) error {
	return s.guardedUpdate(ctx, ticketID, models.StatusPendingPayment, `
		UPDATE tickets
		SET status = ?, user_external_id = NULL, user_display_name = NULL, reserved_at = NULL
		WHERE id = ? AND status = ?`,
		models.StatusAvailable, ticketID, models.StatusPendingPayment)
}

// guardedUpdate runs a conditional status transition for one ticket and
// classifies the zero-rows case as either ErrNotFound or
// ErrInvalidTransition.
func (s *Service) guardedUpdate(ctx context.Context, ticketID int64, want models.TicketStatus, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current models.TicketStatus
		err := tx.QueryRowContext(ctx, "SELECT status FROM tickets WHERE id = ?", ticketID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: ticket %d", ErrNotFound, ticketID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: ticket %d is %s, want %s", ErrInvalidTransition, ticketID, current, want)
	}
	return tx.Commit()
}

// DeleteTicket removes a ticket row outright, along with any winner rows
// referencing it so nothing dangles.
func (s *Service) DeleteTicket(ctx context.Context, ticketID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM winners WHERE ticket_id = ?", ticketID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", ticketID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: ticket %d", ErrNotFound, ticketID)
	}
	return tx.Commit()
}
