package models

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// TicketStatus is the closed set of states a ticket moves through.
type TicketStatus string

const (
	StatusAvailable      TicketStatus = "available"
	StatusPendingPayment TicketStatus = "pending_payment"
	StatusApproved       TicketStatus = "approved"
	StatusWon            TicketStatus = "won"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusPendingPayment, StatusApproved, StatusWon:
		return true
	}
	return false
}

// Draw is a pool of numbered, priced tickets with a one-time execution event.
type Draw struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	TotalTickets int        `json:"total_tickets"`
	TicketPrice  float64    `json:"ticket_price"`
	CreatedAt    time.Time  `json:"created_at"`
	DrawTime     *time.Time `json:"draw_time"` // set only at execution
	IsActive     bool       `json:"is_active"`
	IsDrawn      bool       `json:"is_drawn"`
}

// Ticket is a numbered slot within a draw. (draw_id, ticket_number) is
// unique; a ticket never moves between draws.
type Ticket struct {
	ID              int64        `json:"id"`
	DrawID          int64        `json:"draw_id"`
	TicketNumber    int          `json:"ticket_number"`
	UserExternalID  *string      `json:"user_external_id"`
	UserDisplayName *string      `json:"user_display_name"`
	Status          TicketStatus `json:"status"`
	ReservedAt      *time.Time   `json:"reserved_at"`
	ApprovedAt      *time.Time   `json:"approved_at"`
}

// Winner links a place and prize amount to a ticket after execution.
type Winner struct {
	ID          int64     `json:"id"`
	DrawID      int64     `json:"draw_id"`
	TicketID    int64     `json:"ticket_id"`
	Place       int       `json:"place"`
	PrizeAmount float64   `json:"prize_amount"`
	WonAt       time.Time `json:"won_at"`

	// Virtual fields (filled by joins)
	TicketNumber    int    `json:"ticket_number,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
}

// UserTicket is the projection served to the chat bot for /my_tickets.
type UserTicket struct {
	DrawName     string       `json:"draw_name"`
	TicketNumber int          `json:"ticket_number"`
	Status       TicketStatus `json:"status"`
	ReservedAt   *time.Time   `json:"reserved_at"`
}

// AdminUser is a credentialed administrator account.
type AdminUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// VerifyPassword checks raw against the stored bcrypt hash.
func (u *AdminUser) VerifyPassword(raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(raw)) == nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Ordinal renders n with its English ordinal suffix (1st, 2nd, 3rd, 4th,
// 11th-13th as "th").
func Ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
