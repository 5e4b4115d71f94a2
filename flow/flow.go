// Package flow defines the chat dialogs: user registration, the
// listing wizard for owners and the browse-and-book funnel.
package flow

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/booking"
	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/store"
)

// Flow identifiers.
const (
	FlowRegistration = "register"
	FlowAddListing   = "add_listing"
	FlowBrowse       = "browse"
)

// Messenger is the outbound surface the flows talk through. The
// Telegram notifier implements it.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	SendMenu(ctx context.Context, chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	SendMediaGroup(ctx context.Context, chatID int64, fileIDs []string, caption string) error
	SendLocation(ctx context.Context, chatID int64, lat, lon float64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Deps carries the services the flows depend on.
type Deps struct {
	Profile  *profile.Profile
	Store    *store.Store
	Engine   *booking.Engine
	Notifier Messenger
	Runtime  *conversation.Runtime
}

// RegisterAll wires every flow into the runtime.
func RegisterAll(deps *Deps) {
	deps.Runtime.Register(newRegistrationFlow(deps))
	deps.Runtime.Register(newAddListingFlow(deps))
	deps.Runtime.Register(newBrowseFlow(deps))
}

// send is a shorthand that drops the message id.
func (d *Deps) send(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	_, _ = d.Notifier.Send(ctx, chatID, text, kb)
}
