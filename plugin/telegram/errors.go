package telegram

import (
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrorKind classifies a failed Bot API call so callers can decide
// between retrying, giving up on the recipient, or degrading the payload.
type ErrorKind int

const (
	// KindTransient covers rate limits, 5xx responses and network blips.
	KindTransient ErrorKind = iota
	// KindPermanent covers recipients that can never be reached again,
	// e.g. the user blocked the bot or deleted the account.
	KindPermanent
	// KindParseMode means the markup was rejected; the same text will go
	// through as plain text.
	KindParseMode
	// KindUnexpected is everything else.
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindParseMode:
		return "parse_mode"
	default:
		return "unexpected"
	}
}

var permanentMarkers = []string{
	"bot was blocked by the user",
	"user is deactivated",
	"chat not found",
	"bot was kicked",
	"have no rights to send",
}

// Classify maps a Bot API error to its kind. Non-API errors (DNS, reset
// connections, timeouts) count as transient because a later attempt can
// succeed.
func Classify(err error) ErrorKind {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return KindTransient
	}

	switch {
	case apiErr.Code == 429 || apiErr.RetryAfter > 0:
		return KindTransient
	case apiErr.Code >= 500:
		return KindTransient
	case apiErr.Code == 403:
		return KindPermanent
	case apiErr.Code == 400 && strings.Contains(apiErr.Message, "can't parse entities"):
		return KindParseMode
	}

	msg := strings.ToLower(apiErr.Message)
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return KindPermanent
		}
	}
	return KindUnexpected
}

// RetryAfter extracts the server-mandated cool-down, in seconds, from a
// rate limit error. Zero means none was given.
func RetryAfter(err error) int {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
