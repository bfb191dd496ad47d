package lottery

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotteria/internal/db"
	"lotteria/internal/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

type sentMessage struct {
	externalID string
	text       string
}

func (n *recordingNotifier) Send(externalID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return assert.AnError
	}
	n.sent = append(n.sent, sentMessage{externalID, text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func newTestService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	notifier := &recordingNotifier{}
	svc := NewService(conn, notifier, DefaultConfig(), zerolog.Nop())
	return svc, notifier
}

func reserveAndApprove(t *testing.T, svc *Service, drawID int64, ticketNumber int, externalID string) models.Ticket {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.Reserve(ctx, drawID, ticketNumber, externalID, "user "+externalID))

	tickets, err := svc.TicketsForDraw(ctx, drawID)
	require.NoError(t, err)
	for _, tk := range tickets {
		if tk.TicketNumber == ticketNumber {
			require.NoError(t, svc.Approve(ctx, tk.ID))
			return tk
		}
	}
	t.Fatalf("ticket #%d not found in draw %d", ticketNumber, drawID)
	return models.Ticket{}
}

func TestCreateDraw(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("generates the full ticket pool", func(t *testing.T) {
		draw, err := svc.CreateDraw(ctx, "Spring Draw", 25, 10.00)
		require.NoError(t, err)

		tickets, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, tickets, 25)

		seen := make(map[int]bool)
		for _, tk := range tickets {
			assert.Equal(t, models.StatusAvailable, tk.Status)
			assert.False(t, seen[tk.TicketNumber], "duplicate ticket number %d", tk.TicketNumber)
			seen[tk.TicketNumber] = true
		}
		for i := 1; i <= 25; i++ {
			assert.True(t, seen[i], "missing ticket number %d", i)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := svc.CreateDraw(ctx, "", 10, 1.00)
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.CreateDraw(ctx, "x", 0, 1.00)
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.CreateDraw(ctx, "x", 10, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestReserve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	draw, err := svc.CreateDraw(ctx, "Reserve Draw", 5, 2.50)
	require.NoError(t, err)

	t.Run("succeeds on an available ticket", func(t *testing.T) {
		require.NoError(t, svc.Reserve(ctx, draw.ID, 3, "1001", "Alice"))

		tickets, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		tk := tickets[2]
		assert.Equal(t, models.StatusPendingPayment, tk.Status)
		require.NotNil(t, tk.UserExternalID)
		assert.Equal(t, "1001", *tk.UserExternalID)
		require.NotNil(t, tk.UserDisplayName)
		assert.Equal(t, "Alice", *tk.UserDisplayName)
		assert.NotNil(t, tk.ReservedAt)
	})

	t.Run("second reservation of the same ticket loses", func(t *testing.T) {
		err := svc.Reserve(ctx, draw.ID, 3, "1002", "Bob")
		assert.ErrorIs(t, err, ErrTicketUnavailable)

		// Holder fields must be untouched.
		tickets, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, "1001", *tickets[2].UserExternalID)
	})

	t.Run("missing fields are a validation error", func(t *testing.T) {
		assert.ErrorIs(t, svc.Reserve(ctx, draw.ID, 1, "", "Bob"), ErrValidation)
		assert.ErrorIs(t, svc.Reserve(ctx, draw.ID, 1, "1002", ""), ErrValidation)
	})

	t.Run("unknown ticket number", func(t *testing.T) {
		assert.ErrorIs(t, svc.Reserve(ctx, draw.ID, 99, "1002", "Bob"), ErrNotFound)
	})

	t.Run("unknown draw", func(t *testing.T) {
		assert.ErrorIs(t, svc.Reserve(ctx, 9999, 1, "1002", "Bob"), ErrNotFound)
	})

	t.Run("concurrent duplicates yield exactly one winner", func(t *testing.T) {
		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = svc.Reserve(ctx, draw.ID, 5, "2000", "Racer")
			}(i)
		}
		wg.Wait()

		won := 0
		for _, err := range errs {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, ErrTicketUnavailable)
			}
		}
		assert.Equal(t, 1, won)
	})
}

func TestApproveAndReject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	draw, err := svc.CreateDraw(ctx, "Approval Draw", 3, 1.00)
	require.NoError(t, err)

	tickets, err := svc.TicketsForDraw(ctx, draw.ID)
	require.NoError(t, err)

	t.Run("approve requires pending_payment", func(t *testing.T) {
		err := svc.Approve(ctx, tickets[0].ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		refreshed, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, refreshed[0].Status)
	})

	t.Run("approve sets approved_at", func(t *testing.T) {
		require.NoError(t, svc.Reserve(ctx, draw.ID, 1, "1001", "Alice"))
		require.NoError(t, svc.Approve(ctx, tickets[0].ID))

		refreshed, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, refreshed[0].Status)
		assert.NotNil(t, refreshed[0].ApprovedAt)

		// Second approve is a no-op warning.
		assert.ErrorIs(t, svc.Approve(ctx, tickets[0].ID), ErrInvalidTransition)
	})

	t.Run("reject clears holder fields", func(t *testing.T) {
		require.NoError(t, svc.Reserve(ctx, draw.ID, 2, "1002", "Bob"))
		require.NoError(t, svc.Reject(ctx, tickets[1].ID))

		refreshed, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		tk := refreshed[1]
		assert.Equal(t, models.StatusAvailable, tk.Status)
		assert.Nil(t, tk.UserExternalID)
		assert.Nil(t, tk.UserDisplayName)
		assert.Nil(t, tk.ReservedAt)
	})

	t.Run("reject requires pending_payment", func(t *testing.T) {
		assert.ErrorIs(t, svc.Reject(ctx, tickets[0].ID), ErrInvalidTransition)
		assert.ErrorIs(t, svc.Approve(ctx, 99999), ErrNotFound)
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("no approved tickets", func(t *testing.T) {
		svc, _ := newTestService(t)
		draw, err := svc.CreateDraw(ctx, "Empty Draw", 5, 10.00)
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Execute(ctx, draw.ID), ErrNoEligibleTickets)

		refreshed, err := svc.GetDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.False(t, refreshed.IsDrawn)
		winners, err := svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Empty(t, winners)
	})

	t.Run("five approved tickets at 10.00", func(t *testing.T) {
		svc, notifier := newTestService(t)
		draw, err := svc.CreateDraw(ctx, "Big Draw", 10, 10.00)
		require.NoError(t, err)
		for i := 1; i <= 5; i++ {
			reserveAndApprove(t, svc, draw.ID, i, strconv.Itoa(1000+i))
		}

		require.NoError(t, svc.Execute(ctx, draw.ID))

		winners, err := svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, winners, 3)
		// Pool = 50.00; 40/20/10 percent by place.
		assert.Equal(t, 1, winners[0].Place)
		assert.Equal(t, 20.00, winners[0].PrizeAmount)
		assert.Equal(t, 2, winners[1].Place)
		assert.Equal(t, 10.00, winners[1].PrizeAmount)
		assert.Equal(t, 3, winners[2].Place)
		assert.Equal(t, 5.00, winners[2].PrizeAmount)

		refreshed, err := svc.GetDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.True(t, refreshed.IsDrawn)
		assert.NotNil(t, refreshed.DrawTime)

		// Winning tickets carry the stored won status; the rest stay approved.
		counts, err := svc.StatusCounts(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, counts[models.StatusWon])
		assert.Equal(t, 2, counts[models.StatusApproved])

		assert.Len(t, notifier.messages(), 3)

		// Second execution is rejected outright and adds nothing.
		assert.ErrorIs(t, svc.Execute(ctx, draw.ID), ErrAlreadyExecuted)
		winners, err = svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Len(t, winners, 3)
	})

	t.Run("single approved ticket", func(t *testing.T) {
		svc, _ := newTestService(t)
		draw, err := svc.CreateDraw(ctx, "Solo Draw", 3, 7.50)
		require.NoError(t, err)
		reserveAndApprove(t, svc, draw.ID, 2, "1001")

		require.NoError(t, svc.Execute(ctx, draw.ID))

		winners, err := svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, winners, 1)
		assert.Equal(t, 1, winners[0].Place)
		assert.Equal(t, 3.00, winners[0].PrizeAmount) // 40% of 7.50
		assert.Equal(t, 2, winners[0].TicketNumber)
	})

	t.Run("winner count never exceeds prize places", func(t *testing.T) {
		conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), "")
		require.NoError(t, err)
		conn.SetMaxOpenConns(1)
		t.Cleanup(func() { conn.Close() })

		// Misconfigured cap above the three prize places must clamp, not
		// index past the split table.
		cfg := DefaultConfig()
		cfg.MaxWinners = 5
		svc := NewService(conn, &recordingNotifier{}, cfg, zerolog.Nop())

		draw, err := svc.CreateDraw(ctx, "Overcapped Draw", 6, 10.00)
		require.NoError(t, err)
		for i := 1; i <= 4; i++ {
			reserveAndApprove(t, svc, draw.ID, i, strconv.Itoa(1000+i))
		}

		require.NotPanics(t, func() {
			require.NoError(t, svc.Execute(ctx, draw.ID))
		})

		winners, err := svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, winners, 3)
		// Pool = 40.00; 40/20/10 percent by place.
		assert.Equal(t, 16.00, winners[0].PrizeAmount)
		assert.Equal(t, 8.00, winners[1].PrizeAmount)
		assert.Equal(t, 4.00, winners[2].PrizeAmount)
	})

	t.Run("notification failure does not fail execution", func(t *testing.T) {
		svc, notifier := newTestService(t)
		notifier.fail = true
		draw, err := svc.CreateDraw(ctx, "Flaky Bot Draw", 3, 1.00)
		require.NoError(t, err)
		reserveAndApprove(t, svc, draw.ID, 1, "1001")

		require.NoError(t, svc.Execute(ctx, draw.ID))
		refreshed, err := svc.GetDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.True(t, refreshed.IsDrawn)
	})
}

func TestSweep(t *testing.T) {
	svc, notifier := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	draw, err := svc.CreateDraw(ctx, "Sweep Draw", 4, 1.00)
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(ctx, draw.ID, 1, "1001", "Stale"))
	require.NoError(t, svc.Reserve(ctx, draw.ID, 2, "1002", "Fresh"))
	require.NoError(t, svc.Reserve(ctx, draw.ID, 3, "1003", "Paid"))

	tickets, err := svc.TicketsForDraw(ctx, draw.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, tickets[2].ID))

	backdate := func(id int64, to time.Time) {
		_, err := svc.db.ExecContext(ctx, "UPDATE tickets SET reserved_at = ? WHERE id = ?", to.Unix(), id)
		require.NoError(t, err)
	}
	backdate(tickets[0].ID, now.Add(-2*time.Hour))
	backdate(tickets[1].ID, now.Add(-30*time.Minute))
	backdate(tickets[2].ID, now.Add(-3*time.Hour)) // approved, must survive

	reverted, err := svc.Sweep(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	refreshed, err := svc.TicketsForDraw(ctx, draw.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, refreshed[0].Status)
	assert.Nil(t, refreshed[0].UserExternalID)
	assert.Equal(t, models.StatusPendingPayment, refreshed[1].Status)
	assert.Equal(t, models.StatusApproved, refreshed[2].Status)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1001", msgs[0].externalID)
	assert.Contains(t, msgs[0].text, "expired")

	// Nothing stale left; a second sweep is a no-op.
	reverted, err = svc.Sweep(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, reverted)
}

func TestReset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draw, err := svc.CreateDraw(ctx, "Reset Draw", 4, 5.00)
	require.NoError(t, err)
	reserveAndApprove(t, svc, draw.ID, 1, "1001")
	require.NoError(t, svc.Execute(ctx, draw.ID))

	require.NoError(t, svc.Reset(ctx, draw.ID))

	tickets, err := svc.TicketsForDraw(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	winners, err := svc.WinnersForDraw(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, winners)

	refreshed, err := svc.GetDraw(ctx, draw.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.IsDrawn)
	assert.Nil(t, refreshed.DrawTime)

	assert.ErrorIs(t, svc.Reset(ctx, 9999), ErrNotFound)
}

func TestWinnerAndTicketDeletion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draw, err := svc.CreateDraw(ctx, "Cleanup Draw", 4, 5.00)
	require.NoError(t, err)
	winning := reserveAndApprove(t, svc, draw.ID, 1, "1001")
	require.NoError(t, svc.Execute(ctx, draw.ID))

	winners, err := svc.WinnersForDraw(ctx, draw.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)

	t.Run("deleting a winner keeps the ticket", func(t *testing.T) {
		require.NoError(t, svc.DeleteWinner(ctx, winners[0].ID))

		tickets, err := svc.TicketsForDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, tickets, 4)
		assert.Equal(t, models.StatusApproved, tickets[0].Status)

		remaining, err := svc.WinnersForDraw(ctx, draw.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("deleting a ticket removes its winner rows", func(t *testing.T) {
		// Re-create the winner link for the same ticket.
		_, err := svc.db.ExecContext(ctx,
			"INSERT INTO winners (draw_id, ticket_id, place, prize_amount, won_at) VALUES (?, ?, 1, 2.00, ?)",
			draw.ID, winning.ID, time.Now().Unix())
		require.NoError(t, err)

		require.NoError(t, svc.DeleteTicket(ctx, winning.ID))

		var count int
		require.NoError(t, svc.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM winners WHERE ticket_id = ?", winning.ID).Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("deleting a missing ticket reports not found", func(t *testing.T) {
		assert.ErrorIs(t, svc.DeleteTicket(ctx, 99999), ErrNotFound)
		assert.ErrorIs(t, svc.DeleteWinner(ctx, 99999), ErrNotFound)
	})
}

func TestProjections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draw, err := svc.CreateDraw(ctx, "Projection Draw", 4, 3.00)
	require.NoError(t, err)
	reserveAndApprove(t, svc, draw.ID, 1, "1001")
	require.NoError(t, svc.Reserve(ctx, draw.ID, 2, "1001", "Alice"))

	t.Run("status counts", func(t *testing.T) {
		counts, err := svc.StatusCounts(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[models.StatusAvailable])
		assert.Equal(t, 1, counts[models.StatusPendingPayment])
		assert.Equal(t, 1, counts[models.StatusApproved])
		assert.Equal(t, 0, counts[models.StatusWon])
	})

	t.Run("collected pot counts approved tickets only", func(t *testing.T) {
		pot, err := svc.CollectedPot(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, 3.00, pot)
	})

	t.Run("tickets for user", func(t *testing.T) {
		tickets, err := svc.TicketsForUser(ctx, "1001")
		require.NoError(t, err)
		require.Len(t, tickets, 2)
		for _, tk := range tickets {
			assert.Equal(t, "Projection Draw", tk.DrawName)
		}
	})

	t.Run("draw listings", func(t *testing.T) {
		active, err := svc.ActiveDraws(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		drawn, err := svc.DrawnDraws(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, drawn)
	})
}
