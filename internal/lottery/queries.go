package lottery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lotteria/internal/models"
)

const drawColumns = "id, name, total_tickets, ticket_price, created_at, draw_time, is_active, is_drawn"

func scanDraw(row interface{ Scan(...any) error }) (models.Draw, error) {
	var d models.Draw
	var createdAt int64
	var drawTime sql.NullInt64
	err := row.Scan(&d.ID, &d.Name, &d.TotalTickets, &d.TicketPrice, &createdAt, &drawTime, &d.IsActive, &d.IsDrawn)
	if err != nil {
		return models.Draw{}, err
	}
	d.CreatedAt = unixTime(createdAt)
	d.DrawTime = nullableTime(drawTime)
	return d, nil
}

// GetDraw loads a single draw by id.
func (s *Service) GetDraw(ctx context.Context, drawID int64) (*models.Draw, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+drawColumns+" FROM draws WHERE id = ?", drawID)
	d, err := scanDraw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDraws returns every draw, newest first.
func (s *Service) ListDraws(ctx context.Context) ([]models.Draw, error) {
	return s.queryDraws(ctx, "SELECT "+drawColumns+" FROM draws ORDER BY created_at DESC")
}

// ActiveDraws returns draws accepting reservations, newest first.
func (s *Service) ActiveDraws(ctx context.Context) ([]models.Draw, error) {
	return s.queryDraws(ctx, "SELECT "+drawColumns+" FROM draws WHERE is_active = 1 AND is_drawn = 0 ORDER BY created_at DESC")
}

// DrawnDraws returns executed draws, most recently drawn first. A limit of
// zero means no limit.
func (s *Service) DrawnDraws(ctx context.Context, limit int) ([]models.Draw, error) {
	query := "SELECT " + drawColumns + " FROM draws WHERE is_drawn = 1 ORDER BY draw_time DESC"
	if limit > 0 {
		return s.queryDraws(ctx, query+" LIMIT ?", limit)
	}
	return s.queryDraws(ctx, query)
}

func (s *Service) queryDraws(ctx context.Context, query string, args ...any) ([]models.Draw, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var draws []models.Draw
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			return nil, err
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

// TicketsForDraw returns the draw's tickets ordered by ticket number.
func (s *Service) TicketsForDraw(ctx context.Context, drawID int64) ([]models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draw_id, ticket_number, user_external_id, user_display_name, status, reserved_at, approved_at
		FROM tickets WHERE draw_id = ? ORDER BY ticket_number ASC`, drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		var reservedAt, approvedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.DrawID, &t.TicketNumber, &t.UserExternalID, &t.UserDisplayName, &t.Status, &reservedAt, &approvedAt); err != nil {
			return nil, err
		}
		t.ReservedAt = nullableTime(reservedAt)
		t.ApprovedAt = nullableTime(approvedAt)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// WinnersForDraw returns the draw's winners ordered by place, with ticket
// number and holder name filled in.
func (s *Service) WinnersForDraw(ctx context.Context, drawID int64) ([]models.Winner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.draw_id, w.ticket_id, w.place, w.prize_amount, w.won_at,
		       t.ticket_number, COALESCE(t.user_display_name, '')
		FROM winners w
		JOIN tickets t ON w.ticket_id = t.id
		WHERE w.draw_id = ?
		ORDER BY w.place ASC`, drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []models.Winner
	for rows.Next() {
		var w models.Winner
		var wonAt int64
		if err := rows.Scan(&w.ID, &w.DrawID, &w.TicketID, &w.Place, &w.PrizeAmount, &wonAt, &w.TicketNumber, &w.UserDisplayName); err != nil {
			return nil, err
		}
		w.WonAt = unixTime(wonAt)
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// StatusCounts returns the number of tickets per status for a draw, with
// every known status present in the map.
func (s *Service) StatusCounts(ctx context.Context, drawID int64) (map[models.TicketStatus]int, error) {
	counts := map[models.TicketStatus]int{
		models.StatusAvailable:      0,
		models.StatusPendingPayment: 0,
		models.StatusApproved:       0,
		models.StatusWon:            0,
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(id) FROM tickets WHERE draw_id = ? GROUP BY status", drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		if status.Valid() {
			counts[status] = n
		}
	}
	return counts, rows.Err()
}

// CollectedPot is the prize pool collected so far: approved (and won)
// ticket count times the ticket price.
func (s *Service) CollectedPot(ctx context.Context, drawID int64) (float64, error) {
	var pot float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(t.id) * d.ticket_price
		FROM draws d
		LEFT JOIN tickets t ON t.draw_id = d.id AND t.status IN (?, ?)
		WHERE d.id = ?
		GROUP BY d.id`,
		models.StatusApproved, models.StatusWon, drawID).Scan(&pot)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	return pot, err
}

// TicketsForUser returns every ticket held by the given external id, most
// recently reserved first. Serves the bot's /my_tickets command.
func (s *Service) TicketsForUser(ctx context.Context, externalID string) ([]models.UserTicket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, t.ticket_number, t.status, t.reserved_at
		FROM tickets t
		JOIN draws d ON t.draw_id = d.id
		WHERE t.user_external_id = ?
		ORDER BY t.reserved_at DESC`, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.UserTicket
	for rows.Next() {
		var t models.UserTicket
		var reservedAt sql.NullInt64
		if err := rows.Scan(&t.DrawName, &t.TicketNumber, &t.Status, &reservedAt); err != nil {
			return nil, err
		}
		t.ReservedAt = nullableTime(reservedAt)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
