// Package lottery implements the ticket lifecycle, draw execution and
// expiry reconciliation engines over a shared relational store. Every
// operation runs in a single transaction with status-guarded updates, so a
// failed guard is always a no-op on the store.
package lottery

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"lotteria/internal/models"
	"lotteria/internal/notify"
)

// Config is the tunable surface of the engines.
type Config struct {
	// ExpiryWindow is how long a pending_payment reservation lives before
	// the sweep reverts it.
	ExpiryWindow time.Duration
	// PrizeSplit is the fraction of the pool paid per place, index 0 being
	// first place.
	PrizeSplit []float64
	// MaxWinners caps how many tickets are drawn.
	MaxWinners int
}

// DefaultConfig mirrors the production defaults: 1h expiry, three winners
// at 40/20/10 percent of the pool.
func DefaultConfig() Config {
	return Config{
		ExpiryWindow: time.Hour,
		PrizeSplit:   []float64{0.40, 0.20, 0.10},
		MaxWinners:   3,
	}
}

// Service owns the lottery state machines. The notifier is injected so the
// engines are testable without a live bot connection.
type Service struct {
	db       *sql.DB
	notifier notify.Notifier
	cfg      Config
	log      zerolog.Logger
}

func NewService(db *sql.DB, notifier notify.Notifier, cfg Config, log zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = def.ExpiryWindow
	}
	if len(cfg.PrizeSplit) == 0 {
		cfg.PrizeSplit = def.PrizeSplit
	}
	if cfg.MaxWinners <= 0 {
		cfg.MaxWinners = def.MaxWinners
	}
	// There is one prize fraction per place; never draw more winners than
	// there are places to pay.
	if cfg.MaxWinners > len(cfg.PrizeSplit) {
		cfg.MaxWinners = len(cfg.PrizeSplit)
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{db: db, notifier: notifier, cfg: cfg, log: log}
}

// ExpiryWindow returns the configured reservation expiry window.
func (s *Service) ExpiryWindow() time.Duration { return s.cfg.ExpiryWindow }

// CreateDraw inserts a draw and its tickets 1..totalTickets, all available,
// in one transaction.
func (s *Service) CreateDraw(ctx context.Context, name string, totalTickets int, ticketPrice float64) (*models.Draw, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: draw name is required", ErrValidation)
	}
	if totalTickets < 1 {
		return nil, fmt.Errorf("%w: total tickets must be positive", ErrValidation)
	}
	if ticketPrice <= 0 {
		return nil, fmt.Errorf("%w: ticket price must be positive", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO draws (name, total_tickets, ticket_price, created_at) VALUES (?, ?, ?, ?)",
		name, totalTickets, ticketPrice, now.Unix())
	if err != nil {
		return nil, err
	}
	drawID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO tickets (draw_id, ticket_number, status) VALUES (?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for i := 1; i <= totalTickets; i++ {
		if _, err := stmt.ExecContext(ctx, drawID, i, models.StatusAvailable); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.Info().Int64("draw_id", drawID).Str("name", name).Int("tickets", totalTickets).Msg("draw created")
	return &models.Draw{
		ID:           drawID,
		Name:         name,
		TotalTickets: totalTickets,
		TicketPrice:  ticketPrice,
		CreatedAt:    now,
		IsActive:     true,
	}, nil
}

// DeleteDraw removes the draw and all of its tickets and winners.
func (s *Service) DeleteDraw(ctx context.Context, drawID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM winners WHERE draw_id = ?", drawID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE draw_id = ?", drawID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM draws WHERE id = ?", drawID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: draw %d", ErrNotFound, drawID)
	}
	return tx.Commit()
}

// notifyBestEffort delivers a message off the critical path. Failures are
// logged and swallowed.
func (s *Service) notifyBestEffort(externalID, text string) {
	if externalID == "" {
		return
	}
	if err := s.notifier.Send(externalID, text); err != nil {
		s.log.Warn().Err(err).Str("external_id", externalID).Msg("notification failed")
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func unixTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
