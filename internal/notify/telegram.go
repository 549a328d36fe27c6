// Package notify delivers booking notifications to users and administrators over Telegram.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"testdrive/internal/booking"
	"testdrive/internal/events"
	"testdrive/internal/models"
)

const (
	queueSize = 256
	// Telegram allows roughly 30 messages per second per bot.
	sendRate  = 20
	sendBurst = 5
)

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Directory resolves users to Telegram chats.
type Directory interface {
	TelegramChatID(ctx context.Context, userID string) (int64, bool, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type message struct {
	chatID int64
	text   string
}

// Notifier turns booking events into chat messages. Event handlers only
// enqueue; Run performs the rate-limited delivery.
type Notifier struct {
	sender  Sender
	dir     Directory
	logger  *zerolog.Logger
	limiter *rate.Limiter
	queue   chan message
}

// NewBot connects to the Telegram Bot API.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewNotifier(sender Sender, dir Directory, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "notify").Logger()
	return &Notifier{
		sender:  sender,
		dir:     dir,
		logger:  &l,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		queue:   make(chan message, queueSize),
	}
}

// Subscribe routes booking lifecycle events on bus to n.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(booking.EventBookingCreated, n.HandleEvent)
	bus.Subscribe(booking.EventBookingStatusChanged, n.HandleEvent)
}

// HandleEvent enqueues the messages an event produces.
func (n *Notifier) HandleEvent(e events.Event) error {
	var ev booking.Event
	if err := e.Decode(&ev); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch e.Type {
	case booking.EventBookingCreated:
		n.toUser(ctx, ev.UserID, fmt.Sprintf("Your test drive request for %s on %s %s-%s was received and is awaiting confirmation.",
			ev.ResourceID, ev.Date, ev.StartTime, ev.EndTime))
		n.toAdmins(ctx, fmt.Sprintf("New test drive request %s: %s on %s %s-%s by %s.",
			ev.BookingID, ev.ResourceID, ev.Date, ev.StartTime, ev.EndTime, ev.UserID))
	case booking.EventBookingStatusChanged:
		text := statusText(ev)
		if text == "" {
			return nil
		}
		n.toUser(ctx, ev.UserID, text)
		if ev.Status == models.StatusCancelled && ev.ChangedBy == ev.UserID {
			n.toAdmins(ctx, fmt.Sprintf("Booking %s (%s on %s %s) was cancelled by the customer.",
				ev.BookingID, ev.ResourceID, ev.Date, ev.StartTime))
		}
	}
	return nil
}

func statusText(ev booking.Event) string {
	slot := fmt.Sprintf("%s on %s %s-%s", ev.ResourceID, ev.Date, ev.StartTime, ev.EndTime)
	switch ev.Status {
	case models.StatusConfirmed:
		return "Your test drive of " + slot + " is confirmed."
	case models.StatusCancelled:
		return "Your test drive of " + slot + " was cancelled."
	case models.StatusCompleted:
		return "Thanks for driving " + ev.ResourceID + ". Your test drive is complete."
	case models.StatusNoShow:
		return "You missed your test drive of " + slot + "."
	default:
		return ""
	}
}

// ReminderText is the message sent ahead of a confirmed booking.
func ReminderText(b models.Booking) string {
	return fmt.Sprintf("Reminder: your test drive of %s is on %s at %s.", b.ResourceID, b.DateString(), b.StartTime)
}

// SendReminder delivers a reminder synchronously so the caller can record the outcome.
// ok is false when the user has no linked chat.
func (n *Notifier) SendReminder(ctx context.Context, b models.Booking) (ok bool, err error) {
	chatID, linked, err := n.dir.TelegramChatID(ctx, b.UserID)
	if err != nil {
		return false, err
	}
	if !linked {
		return false, nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, ReminderText(b))); err != nil {
		return false, fmt.Errorf("send reminder to %d: %w", chatID, err)
	}
	return true, nil
}

func (n *Notifier) toUser(ctx context.Context, userID, text string) {
	chatID, ok, err := n.dir.TelegramChatID(ctx, userID)
	if err != nil {
		n.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve chat")
		return
	}
	if !ok {
		n.logger.Debug().Str("user_id", userID).Msg("Notification skipped (no chat)")
		return
	}
	n.enqueue(message{chatID: chatID, text: text})
}

func (n *Notifier) toAdmins(ctx context.Context, text string) {
	admins, err := n.dir.ListAdmins(ctx)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to list admins")
		return
	}
	for _, a := range admins {
		if a.TelegramChatID != 0 {
			n.enqueue(message{chatID: a.TelegramChatID, text: text})
		}
	}
}

func (n *Notifier) enqueue(m message) {
	select {
	case n.queue <- m:
	default:
		n.logger.Warn().Int64("chat_id", m.chatID).Msg("Notification queue full, message dropped")
	}
}

// Run delivers queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.sender.Send(tgbotapi.NewMessage(m.chatID, m.text)); err != nil {
				n.logger.Error().Err(err).Int64("chat_id", m.chatID).Msg("Failed to send telegram notification")
			}
		}
	}
}
