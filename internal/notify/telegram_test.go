package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"polybot-go/internal/signal"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	sent  []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, errors.New("telegram down")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"Momentum: +0.500% (1m)", "Momentum: \\+0\\.500% \\(1m\\)"},
		{"btc-updown-5m-1717243200", "btc\\-updown\\-5m\\-1717243200"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeMarkdownV2(tt.input); got != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewTelegramInvalidChatID(t *testing.T) {
	if _, err := NewTelegram("", "not-a-number", zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid chat ID")
	}
}

func TestFormatSignal(t *testing.T) {
	stop := 0.45
	text := formatSignal(signal.Signal{
		Market:       "btc-updown-5m-1717243200",
		Direction:    signal.Down,
		Confidence:   64,
		Type:         signal.OrderBook,
		PositionSize: 160,
		StopLoss:     &stop,
		Reasoning:    []string{"OB Imbalance: -0.40 (bearish)"},
	})
	for _, want := range []string{"📉", "*DOWN*", "64%", "ORDERBOOK", "$160\\.00", "Stop: 0\\.45", "OB Imbalance: \\-0\\.40 \\(bearish\\)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func TestRunDeliversWithRetry(t *testing.T) {
	fake := &fakeSender{fails: 1}
	tg := newTelegram(fake, 42, zerolog.Nop())
	tg.retryDelayBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tg.Run(ctx)
		close(done)
	}()

	tg.Publish(signal.Signal{Market: "m", Direction: signal.Up, Confidence: 70})

	deadline := time.After(2 * time.Second)
	for fake.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("message not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.sent[0].ChatID != 42 || fake.sent[0].ParseMode != "MarkdownV2" {
		t.Fatalf("unexpected message %+v", fake.sent[0])
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	tg := newTelegram(&fakeSender{}, 1, zerolog.Nop())
	for i := 0; i < cap(tg.queue)+5; i++ {
		tg.Publish(signal.Signal{Direction: signal.Up})
	}
	if len(tg.queue) != cap(tg.queue) {
		t.Fatalf("expected full queue, got %d", len(tg.queue))
	}
}
