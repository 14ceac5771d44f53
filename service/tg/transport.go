// Package tg adapts the Telegram long-poll transport to the bot. The
// dispatcher never sees telebot types; it receives (chat id, text) and
// (chat id, callback data) pairs and answers through the Sender
// interface.
package tg

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"TGModule/logger"
	"TGModule/module/bot"
)

// Dispatcher is what the transport feeds inbound events into.
type Dispatcher interface {
	HandleCommand(ctx context.Context, chatID int64, text string)
	HandleCallback(ctx context.Context, chatID int64, data string)
}

type Transport struct {
	bot *tele.Bot

	// sendMu serializes outbound sends; the platform client is not
	// guaranteed thread-safe and three goroutines write through it.
	sendMu sync.Mutex
}

func New(token string) (*Transport, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Transport{bot: b}, nil
}

// Bind registers the inbound handlers. Telebot dispatches handlers
// concurrently, so the dispatcher must be thread-safe (it is: session
// ordering is provided by the store, not by in-process locks).
func (t *Transport) Bind(ctx context.Context, d Dispatcher) {
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		d.HandleCommand(ctx, c.Chat().ID, c.Text())
		return nil
	})

	t.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		data := strings.TrimPrefix(c.Callback().Data, "\f")
		d.HandleCallback(ctx, c.Chat().ID, data)
		return c.Respond()
	})
}

// Start runs the long-poll loop; blocks for process lifetime.
func (t *Transport) Start() {
	logger.Info("telegram long-poll started")
	t.bot.Start()
}

// Stop terminates the long-poll loop.
func (t *Transport) Stop() {
	t.bot.Stop()
}

// Send delivers plain text. Failures are logged and swallowed: a chat
// that blocked the bot must not break a sweep over other chats.
func (t *Transport) Send(chatID int64, text string) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if _, err := t.bot.Send(tele.ChatID(chatID), text); err != nil {
		logger.Warn("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// SendKeyboard delivers text with an inline keyboard, one button per
// row the way the command surface expects.
func (t *Transport) SendKeyboard(chatID int64, text string, buttons []bot.Button) {
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []tele.InlineButton{{Text: b.Text, Data: b.Data}})
	}
	markup := &tele.ReplyMarkup{InlineKeyboard: rows}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if _, err := t.bot.Send(tele.ChatID(chatID), text, markup); err != nil {
		logger.Warn("send with keyboard failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}
