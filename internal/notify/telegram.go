// Package notify pushes surfaced signals to Telegram.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"polybot-go/internal/board"
	"polybot-go/internal/signal"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram queues signals and delivers them from its own goroutine so the tick never waits on the network.
type Telegram struct {
	bot            sender
	chatID         int64
	log            zerolog.Logger
	queue          chan signal.Signal
	maxRetries     int
	retryDelayBase time.Duration
}

var _ board.Sink = (*Telegram)(nil)

// NewTelegram validates the chat ID, then authenticates the bot token against the API.
func NewTelegram(botToken, chatID string, log zerolog.Logger) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newTelegram(bot, id, log), nil
}

func newTelegram(bot sender, chatID int64, log zerolog.Logger) *Telegram {
	return &Telegram{
		bot:            bot,
		chatID:         chatID,
		log:            log,
		queue:          make(chan signal.Signal, 32),
		maxRetries:     3,
		retryDelayBase: time.Second,
	}
}

// Publish enqueues sig; when the queue is full the signal is dropped and logged.
func (t *Telegram) Publish(sig signal.Signal) {
	select {
	case t.queue <- sig:
	default:
		t.log.Warn().Str("market", sig.Market).Msg("telegram queue full, dropping signal")
	}
}

// Run delivers queued signals until ctx is canceled.
func (t *Telegram) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-t.queue:
			if err := t.send(ctx, formatSignal(sig)); err != nil && ctx.Err() == nil {
				t.log.Warn().Err(err).Str("market", sig.Market).Msg("telegram delivery failed")
			}
		}
	}
}

// send posts a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

func formatSignal(sig signal.Signal) string {
	emoji := "📈"
	if sig.Direction == signal.Down {
		emoji = "📉"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", emoji, escapeMarkdownV2(string(sig.Direction)), escapeMarkdownV2(sig.Market))
	fmt.Fprintf(&b, "Confidence: %s \\| Type: %s\n",
		escapeMarkdownV2(fmt.Sprintf("%d%%", sig.Confidence)), escapeMarkdownV2(string(sig.Type)))
	fmt.Fprintf(&b, "Size: %s", escapeMarkdownV2(fmt.Sprintf("$%.2f", sig.PositionSize)))
	if sig.StopLoss != nil {
		fmt.Fprintf(&b, " \\| Stop: %s", escapeMarkdownV2(fmt.Sprintf("%.2f", *sig.StopLoss)))
	}
	b.WriteString("\n")
	for _, r := range sig.Reasoning {
		fmt.Fprintf(&b, "• %s\n", escapeMarkdownV2(r))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
