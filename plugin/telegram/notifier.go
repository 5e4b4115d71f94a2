// Package telegram wraps the Bot API client with retries, rate limiting
// and markup fallback so the rest of the bot can send fire-and-forget.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/safartrip/safarbot/metrics"
)

const (
	maxSendAttempts = 3
	sendRatePerSec  = 25
)

// sender is the slice of tgbotapi.BotAPI the notifier uses. Tests plug
// in a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier delivers outbound messages. Every call is rate limited and
// retried on transient failures with 1s/2s/4s delays; rate limit
// responses honor the server cool-down plus one second.
type Notifier struct {
	bot     sender
	limiter *rate.Limiter
	metrics *metrics.Metrics

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewNotifier wraps an authorized bot client.
func NewNotifier(bot *tgbotapi.BotAPI, m *metrics.Metrics) *Notifier {
	return newNotifier(bot, m)
}

func newNotifier(bot sender, m *metrics.Metrics) *Notifier {
	return &Notifier{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRatePerSec), sendRatePerSec),
		metrics: m,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send delivers an HTML-formatted text message and returns the message
// id. A nil keyboard sends without buttons. If Telegram rejects the
// markup the same text is resent once as plain text.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	build := func(parseMode string) tgbotapi.Chattable {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = parseMode
		if keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		return msg
	}
	return n.sendWithFallback(ctx, "send", build)
}

// SendMenu delivers plain text with a persistent reply keyboard.
func (n *Notifier) SendMenu(ctx context.Context, chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (int, error) {
	build := func(parseMode string) tgbotapi.Chattable {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = parseMode
		msg.ReplyMarkup = keyboard
		return msg
	}
	return n.sendWithFallback(ctx, "send", build)
}

// Edit rewrites a previously sent message in place, replacing its inline
// keyboard. Used to freeze booking prompts after a decision.
func (n *Notifier) Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	build := func(parseMode string) tgbotapi.Chattable {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = parseMode
		edit.ReplyMarkup = keyboard
		return edit
	}
	_, err := n.sendWithFallback(ctx, "edit", build)
	return err
}

// SendPhoto delivers a single photo by Telegram file id.
func (n *Notifier) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	build := func(parseMode string) tgbotapi.Chattable {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
		photo.Caption = caption
		photo.ParseMode = parseMode
		if keyboard != nil {
			photo.ReplyMarkup = keyboard
		}
		return photo
	}
	return n.sendWithFallback(ctx, "send_photo", build)
}

// SendMediaGroup delivers up to ten photos as an album.
func (n *Notifier) SendMediaGroup(ctx context.Context, chatID int64, fileIDs []string, caption string) error {
	media := make([]any, 0, len(fileIDs))
	for i, id := range fileIDs {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(id))
		if i == 0 {
			photo.Caption = caption
		}
		media = append(media, photo)
	}
	cfg := tgbotapi.MediaGroupConfig{ChatID: chatID, Media: media}

	op := func() (struct{}, error) {
		_, err := n.bot.SendMediaGroup(cfg)
		return struct{}{}, err
	}
	_, err := retrySend(ctx, n, "send_media_group", op)
	return err
}

// SendLocation delivers a map pin.
func (n *Notifier) SendLocation(ctx context.Context, chatID int64, lat, lon float64) error {
	loc := tgbotapi.NewLocation(chatID, lat, lon)
	op := func() (tgbotapi.Message, error) {
		return n.bot.Send(loc)
	}
	_, err := retrySend(ctx, n, "send_location", op)
	return err
}

// AnswerCallback acknowledges a callback query, optionally with a toast.
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := n.bot.Request(tgbotapi.NewCallback(callbackID, text))
	if err != nil {
		slog.Debug("telegram: answer callback failed", "error", err)
	}
	return err
}

// sendWithFallback tries HTML first and falls back to plain text when
// the markup is rejected.
func (n *Notifier) sendWithFallback(ctx context.Context, method string, build func(parseMode string) tgbotapi.Chattable) (int, error) {
	op := func() (tgbotapi.Message, error) {
		return n.bot.Send(build(tgbotapi.ModeHTML))
	}
	msg, err := retrySend(ctx, n, method, op)
	if err == nil {
		return msg.MessageID, nil
	}
	if Classify(err) != KindParseMode {
		return 0, err
	}

	slog.Warn("telegram: markup rejected, resending as plain text", "method", method)
	n.metrics.NotifierRetry(KindParseMode.String())
	plain := func() (tgbotapi.Message, error) {
		return n.bot.Send(build(""))
	}
	msg, err = retrySend(ctx, n, method, plain)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// retrySend runs one transport call with the shared retry policy.
func retrySend[T any](ctx context.Context, n *Notifier, method string, op func() (T, error)) (T, error) {
	var zero T

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 4 * time.Second
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return zero, err
		}

		result, err := op()
		n.metrics.NotifierSend(method, err == nil)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := Classify(err)
		if kind != KindTransient || attempt == maxSendAttempts {
			break
		}

		delay := bo.NextBackOff()
		if after := RetryAfter(err); after > 0 {
			delay = time.Duration(after+1) * time.Second
		}
		n.metrics.NotifierRetry(kind.String())
		slog.Debug("telegram: retrying transport call",
			"method", method, "attempt", attempt, "delay", delay, "error", err)
		if err := n.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("telegram %s: %w", method, lastErr)
}
