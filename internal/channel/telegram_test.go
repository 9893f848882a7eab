package channel

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/sparkclaw/internal/bus"
	"github.com/stellarlinkco/sparkclaw/internal/config"
)

type fakeBot struct {
	sent      []tgbotapi.MessageConfig
	failHTML  bool
	sendErr   error
	updatesCh chan tgbotapi.Update
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updatesCh
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable type")
	}
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if f.failHTML && msg.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, errors.New("bad markup")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "sparkclaw_bot"}
}

func newTestTelegram(t *testing.T, cfg config.TelegramConfig, bot *fakeBot) (*TelegramChannel, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus(10)
	ch, err := NewTelegramChannelWithFactory(cfg, b, nil)
	if err != nil {
		t.Fatalf("NewTelegramChannelWithFactory: %v", err)
	}
	ch.SetBot(bot)
	return ch, b
}

func TestNewTelegramChannelNoToken(t *testing.T) {
	b := bus.NewMessageBus(10)
	if _, err := NewTelegramChannel(config.TelegramConfig{}, b); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestTelegramHandleMessage(t *testing.T) {
	ch, b := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, &fakeBot{})

	ch.handleMessage(&tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 12345, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: 67890},
		Text:      "hello there",
		Date:      1700000000,
	})

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "telegram" || msg.SenderID != "12345" || msg.ChatID != "67890" {
			t.Errorf("routing = %s/%s/%s", msg.Channel, msg.SenderID, msg.ChatID)
		}
		if msg.Content != "hello there" {
			t.Errorf("content = %q", msg.Content)
		}
		if msg.SessionKey() != "telegram:67890" {
			t.Errorf("session key = %q", msg.SessionKey())
		}
	default:
		t.Fatal("no inbound message published")
	}
}

func TestTelegramHandleMessageCaption(t *testing.T) {
	ch, b := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, &fakeBot{})

	ch.handleMessage(&tgbotapi.Message{
		From:    &tgbotapi.User{ID: 1},
		Chat:    &tgbotapi.Chat{ID: 2},
		Caption: "photo caption",
	})

	select {
	case msg := <-b.Inbound:
		if msg.Content != "photo caption" {
			t.Errorf("content = %q", msg.Content)
		}
	default:
		t.Fatal("caption message not published")
	}
}

func TestTelegramHandleMessageAllowList(t *testing.T) {
	ch, b := newTestTelegram(t, config.TelegramConfig{Token: "tok", AllowFrom: []string{"111"}}, &fakeBot{})

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 222},
		Chat: &tgbotapi.Chat{ID: 2},
		Text: "blocked sender",
	})

	select {
	case msg := <-b.Inbound:
		t.Fatalf("disallowed sender published %+v", msg)
	default:
	}

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 111},
		Chat: &tgbotapi.Chat{ID: 2},
		Text: "allowed sender",
	})
	select {
	case <-b.Inbound:
	default:
		t.Fatal("allowed sender was dropped")
	}
}

func TestTelegramSend(t *testing.T) {
	bot := &fakeBot{}
	ch, _ := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, bot)

	if err := ch.Send(bus.OutboundMessage{ChatID: "42", Content: "hi **there**"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages", len(bot.sent))
	}
	if bot.sent[0].ChatID != 42 {
		t.Errorf("chat id = %d", bot.sent[0].ChatID)
	}
	if bot.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q", bot.sent[0].ParseMode)
	}
	if bot.sent[0].Text != "hi <b>there</b>" {
		t.Errorf("text = %q", bot.sent[0].Text)
	}
}

func TestTelegramSendChunksLongMessage(t *testing.T) {
	bot := &fakeBot{}
	ch, _ := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, bot)

	long := strings.Repeat(strings.Repeat("a", 99)+"\n", 90)
	if err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: long}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) < 2 {
		t.Fatalf("long message sent as %d chunk(s)", len(bot.sent))
	}
	for i, msg := range bot.sent {
		if len(msg.Text) > telegramMaxLen {
			t.Errorf("chunk %d is %d chars", i, len(msg.Text))
		}
	}
}

func TestTelegramSendPlainTextFallback(t *testing.T) {
	bot := &fakeBot{failHTML: true}
	ch, _ := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, bot)

	if err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: "**broken<markup>**"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages", len(bot.sent))
	}
	if bot.sent[0].ParseMode != "" {
		t.Error("fallback kept HTML parse mode")
	}
	if bot.sent[0].Text != "**broken<markup>**" {
		t.Errorf("fallback text = %q", bot.sent[0].Text)
	}
}

func TestTelegramSendInvalidChatID(t *testing.T) {
	ch, _ := newTestTelegram(t, config.TelegramConfig{Token: "tok"}, &fakeBot{})
	if err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number", Content: "x"}); err == nil {
		t.Error("expected error for invalid chat id")
	}
}

func TestTelegramSendWithoutBot(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "tok"}, b, nil)
	if err != nil {
		t.Fatalf("NewTelegramChannelWithFactory: %v", err)
	}
	if err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: "x"}); err == nil {
		t.Error("expected error when bot not initialized")
	}
}

func TestToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"escapes entities", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"bold", "**hi**", "<b>hi</b>"},
		{"italic", "*hi*", "<i>hi</i>"},
		{"inline code", "`x := 1`", "<code>x := 1</code>"},
		{"code block strips language", "```go\nfmt.Println()\n```", "<pre>fmt.Println()\n</pre>"},
		{"plain text untouched", "just words", "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toTelegramHTML(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
