package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	calls   int
	errs    []error
	sent    []tgbotapi.Chattable
	nextID  int
	grouped [][]any
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	f.sent = append(f.sent, c)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.calls++
	f.grouped = append(f.grouped, cfg.Media)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []tgbotapi.Message{{MessageID: 1}}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.calls++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func newTestNotifier(bot *fakeBot) (*Notifier, *[]time.Duration) {
	n := newNotifier(bot, nil)
	slept := &[]time.Duration{}
	n.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return n, slept
}

func apiError(code int, message string) error {
	return &tgbotapi.Error{Code: code, Message: message}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"rate limit", apiError(429, "Too Many Requests"), KindTransient},
		{"server error", apiError(502, "Bad Gateway"), KindTransient},
		{"network", errors.New("dial tcp: connection refused"), KindTransient},
		{"blocked", apiError(403, "Forbidden: bot was blocked by the user"), KindPermanent},
		{"chat gone", apiError(400, "Bad Request: chat not found"), KindPermanent},
		{"bad markup", apiError(400, "Bad Request: can't parse entities"), KindParseMode},
		{"other", apiError(400, "Bad Request: message is too long"), KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSendRetriesTransientErrors(t *testing.T) {
	bot := &fakeBot{errs: []error{
		apiError(500, "Internal Server Error"),
		apiError(500, "Internal Server Error"),
		nil,
	}}
	n, slept := newTestNotifier(bot)

	id, err := n.Send(context.Background(), 42, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 3, bot.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestSendHonorsRetryAfter(t *testing.T) {
	bot := &fakeBot{errs: []error{
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests",
			ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}},
		nil,
	}}
	n, slept := newTestNotifier(bot)

	_, err := n.Send(context.Background(), 42, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{8 * time.Second}, *slept)
}

func TestSendGivesUpAfterThreeAttempts(t *testing.T) {
	bot := &fakeBot{errs: []error{
		apiError(500, "boom"), apiError(500, "boom"), apiError(500, "boom"),
	}}
	n, _ := newTestNotifier(bot)

	_, err := n.Send(context.Background(), 42, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, 3, bot.calls)
}

func TestSendPermanentErrorNotRetried(t *testing.T) {
	bot := &fakeBot{errs: []error{apiError(403, "Forbidden: bot was blocked by the user")}}
	n, slept := newTestNotifier(bot)

	_, err := n.Send(context.Background(), 42, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, 1, bot.calls)
	assert.Empty(t, *slept)
}

func TestSendFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{errs: []error{apiError(400, "Bad Request: can't parse entities")}}
	n, _ := newTestNotifier(bot)

	id, err := n.Send(context.Background(), 42, "<broken", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	require.Equal(t, 2, bot.calls)

	first := bot.sent[0].(tgbotapi.MessageConfig)
	second := bot.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeHTML, first.ParseMode)
	assert.Equal(t, "", second.ParseMode)
	assert.Equal(t, first.Text, second.Text)
}

func TestSendMediaGroupFirstItemCarriesCaption(t *testing.T) {
	bot := &fakeBot{}
	n, _ := newTestNotifier(bot)

	err := n.SendMediaGroup(context.Background(), 42, []string{"a", "b", "c"}, "caption")
	require.NoError(t, err)
	require.Len(t, bot.grouped, 1)
	require.Len(t, bot.grouped[0], 3)

	first := bot.grouped[0][0].(tgbotapi.InputMediaPhoto)
	rest := bot.grouped[0][1].(tgbotapi.InputMediaPhoto)
	assert.Equal(t, "caption", first.Caption)
	assert.Equal(t, "", rest.Caption)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &amp;&lt;b&gt; \"q\"", Escape(`a &<b> "q"`))
}
