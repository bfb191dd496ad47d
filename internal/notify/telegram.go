package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"lotteria/internal/models"
)

// TicketLister is the slice of the lottery service the bot needs to answer
// /my_tickets.
type TicketLister interface {
	TicketsForUser(ctx context.Context, externalID string) ([]models.UserTicket, error)
}

// Telegram sends messages through a Telegram bot. The external id of a
// user is their chat id in decimal form.
type Telegram struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewTelegram(token string, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("account", bot.Self.UserName).Msg("telegram bot authorized")
	return &Telegram{bot: bot, log: log}, nil
}

func (t *Telegram) Send(externalID, text string) error {
	chatID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return fmt.Errorf("external id %q is not a chat id: %w", externalID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// ListenCommands runs the bot command loop until ctx is cancelled.
// Supported commands: /start and /my_tickets.
func (t *Telegram) ListenCommands(ctx context.Context, lister TicketLister, publicURL string, expiryWindow time.Duration) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			t.handleCommand(ctx, update, lister, publicURL, expiryWindow)
		}
	}
}

func (t *Telegram) handleCommand(ctx context.Context, update tgbotapi.Update, lister TicketLister, publicURL string, expiryWindow time.Duration) {
	chatID := update.Message.Chat.ID
	var reply string

	switch update.Message.Command() {
	case "start":
		reply = fmt.Sprintf(
			"🎟️ Welcome to the Lottery Bot!\nVisit the web app to reserve tickets:\n%s\n\nYour ID: %d",
			publicURL, update.Message.From.ID)
	case "my_tickets":
		reply = t.myTicketsReply(ctx, lister, strconv.FormatInt(update.Message.From.ID, 10), expiryWindow)
	default:
		reply = "Unknown command. Use /start or /my_tickets."
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
		t.log.Warn().Err(err).Int64("chat_id", chatID).Msg("command reply failed")
	}
}

func (t *Telegram) myTicketsReply(ctx context.Context, lister TicketLister, externalID string, expiryWindow time.Duration) string {
	tickets, err := lister.TicketsForUser(ctx, externalID)
	if err != nil {
		t.log.Error().Err(err).Str("external_id", externalID).Msg("ticket lookup failed")
		return "Sorry, ticket lookup failed. Try again later."
	}
	if len(tickets) == 0 {
		return "You have no tickets reserved or approved yet."
	}

	var b strings.Builder
	b.WriteString("🎟️ Your tickets:\n")
	for _, tk := range tickets {
		b.WriteString(fmt.Sprintf("%s Draw: %s, Ticket #%d (%s)\n", statusEmoji(tk.Status), tk.DrawName, tk.TicketNumber, tk.Status))
		if tk.Status == models.StatusPendingPayment && tk.ReservedAt != nil {
			expiry := tk.ReservedAt.Add(expiryWindow)
			b.WriteString(fmt.Sprintf("   ⏰ Expires: %s UTC\n", expiry.UTC().Format("2006-01-02 15:04:05")))
		}
	}
	return b.String()
}

func statusEmoji(s models.TicketStatus) string {
	switch s {
	case models.StatusPendingPayment:
		return "⏳"
	case models.StatusApproved:
		return "✅"
	case models.StatusWon:
		return "🎉"
	default:
		return "🎫"
	}
}
