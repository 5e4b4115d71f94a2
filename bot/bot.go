// Package bot routes Telegram updates to commands, decision callbacks
// and the conversation runtime.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/booking"
	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/flow"
	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

const updateTimeoutSec = 30

// Bot wires the transport to the application services.
type Bot struct {
	api      *tgbotapi.BotAPI
	profile  *profile.Profile
	store    *store.Store
	runtime  *conversation.Runtime
	engine   *booking.Engine
	notifier flow.Messenger
	reporter *telegram.Reporter
	started  time.Time
}

// New assembles the bot. api may be nil in tests that drive
// HandleUpdate directly.
func New(api *tgbotapi.BotAPI, p *profile.Profile, st *store.Store, rt *conversation.Runtime,
	engine *booking.Engine, notifier flow.Messenger, reporter *telegram.Reporter) *Bot {
	return &Bot{
		api:      api,
		profile:  p,
		store:    st,
		runtime:  rt,
		engine:   engine,
		notifier: notifier,
		reporter: reporter,
		started:  time.Now(),
	}
}

// Run consumes long-poll updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updateTimeoutSec
	updates := b.api.GetUpdatesChan(cfg)
	slog.Info("bot: update loop started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("bot: update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handle(ctx, update)
		}
	}
}

// handle processes one update with panic containment; a crashing
// handler must not take the loop down.
func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			slog.Error("bot: handler panicked", "error", err)
			b.reporter.Report(ctx, err, "update handler")
		}
	}()
	if err := b.HandleUpdate(ctx, update); err != nil {
		slog.Error("bot: update failed", "error", err)
		b.reporter.Report(ctx, err, "update handler")
	}
}

// HandleUpdate routes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			return b.cmdStart(ctx, chatID)
		case "help":
			return b.cmdHelp(ctx, chatID)
		case "browse":
			return b.startFlow(ctx, chatID, flow.FlowBrowse)
		case "add":
			return b.cmdAdd(ctx, chatID)
		case "my_listings":
			return b.cmdMyListings(ctx, chatID)
		case "cancel":
			return b.cmdCancel(ctx, chatID)
		case "health":
			return b.cmdHealth(ctx, chatID)
		}
		// /skip and /done are conversation input, everything unknown
		// falls through to the runtime too.
	}

	upd := messageUpdate(msg)
	handled, err := b.runtime.Dispatch(ctx, upd)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	// No active conversation; map menu buttons, otherwise hint.
	switch strings.TrimSpace(msg.Text) {
	case flow.BtnBrowse:
		return b.startFlow(ctx, chatID, flow.FlowBrowse)
	case flow.BtnHelp:
		return b.cmdHelp(ctx, chatID)
	case flow.BtnAddListing:
		return b.cmdAdd(ctx, chatID)
	case flow.BtnMyListings:
		return b.cmdMyListings(ctx, chatID)
	}
	_, err = b.notifier.SendMenu(ctx, chatID,
		"🤔 Tushunmadim. Menyudan foydalaning yoki /help buyrug'ini bosing.",
		flow.MainMenu(b.profile.IsAdmin(chatID)))
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	token := cb.Data

	switch {
	case strings.HasPrefix(token, booking.AcceptPrefix):
		return b.handleDecision(ctx, cb, booking.DecisionAccept, strings.TrimPrefix(token, booking.AcceptPrefix))
	case strings.HasPrefix(token, booking.RejectPrefix):
		return b.handleDecision(ctx, cb, booking.DecisionReject, strings.TrimPrefix(token, booking.RejectPrefix))
	case strings.HasPrefix(token, "myl:"):
		_ = b.notifier.AnswerCallback(ctx, cb.ID, "")
		return b.handleConsoleCallback(ctx, cb)
	}

	_ = b.notifier.AnswerCallback(ctx, cb.ID, "")
	upd := &conversation.Update{
		ChatID: chatID,
		Kind:   conversation.KindCallback,
		Callback: &conversation.Callback{
			ID:        cb.ID,
			Token:     token,
			MessageID: cb.Message.MessageID,
		},
	}
	handled, err := b.runtime.Dispatch(ctx, upd)
	if err != nil {
		return err
	}
	if !handled {
		slog.Debug("bot: stale callback ignored", "token", token, "chat", chatID)
	}
	return nil
}

var statusDisplay = map[store.BookingStatus]string{
	store.StatusAccepted: "✅ Qabul qilingan",
	store.StatusRejected: "❌ Rad etilgan",
	store.StatusTimeout:  "⏰ Vaqt tugagan",
}

// handleDecision applies an owner accept/reject press and rewrites the
// prompt so the keyboard disappears whatever the outcome.
func (b *Bot) handleDecision(ctx context.Context, cb *tgbotapi.CallbackQuery, decision booking.Decision, prefix string) error {
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	outcome, bk, err := b.engine.Decide(ctx, prefix, chatID, decision)
	if err != nil {
		_ = b.notifier.AnswerCallback(ctx, cb.ID, "Xatolik yuz berdi")
		return err
	}

	switch outcome {
	case booking.OutcomeApplied:
		_ = b.notifier.AnswerCallback(ctx, cb.ID, "")
		return b.notifier.Edit(ctx, chatID, messageID, b.engine.OwnerDecisionText(bk, decision), nil)
	case booking.OutcomeAlreadyFinalized:
		_ = b.notifier.AnswerCallback(ctx, cb.ID, "")
		display, ok := statusDisplay[bk.Status]
		if !ok {
			display = string(bk.Status)
		}
		return b.notifier.Edit(ctx, chatID, messageID,
			"⚠️ Bu buyurtma allaqachon ko'rib chiqilgan.\n\nHolat: "+display, nil)
	case booking.OutcomeUnauthorized:
		return b.notifier.AnswerCallback(ctx, cb.ID, "Bu buyurtma sizga tegishli emas")
	default:
		return b.notifier.Edit(ctx, chatID, messageID, "❌ Buyurtma topilmadi.", nil)
	}
}

func (b *Bot) cmdStart(ctx context.Context, chatID int64) error {
	_, err := b.store.GetUser(ctx, chatID)
	if err == nil {
		_, err = b.notifier.SendMenu(ctx, chatID,
			"👋 Qaytganingizdan xursandmiz!\n\nSayohatni boshlash uchun menyudan foydalaning.",
			flow.MainMenu(b.profile.IsAdmin(chatID)))
		return err
	}
	return b.startFlow(ctx, chatID, flow.FlowRegistration)
}

func (b *Bot) cmdHelp(ctx context.Context, chatID int64) error {
	help := "ℹ️ <b>Buyruqlar</b>\n\n" +
		"/browse — xizmatlarni ko'rish va bron qilish\n" +
		"/cancel — joriy amalni bekor qilish\n" +
		"/help — shu yordam"
	if b.profile.IsAdmin(chatID) {
		help += "\n\n<b>Egalar uchun</b>\n" +
			"/add — yangi listing qo'shish\n" +
			"/my_listings — listinglarni boshqarish\n" +
			"/health — tizim holati"
	}
	_, err := b.notifier.SendMenu(ctx, chatID, help, flow.MainMenu(b.profile.IsAdmin(chatID)))
	return err
}

func (b *Bot) cmdAdd(ctx context.Context, chatID int64) error {
	if !b.profile.IsAdmin(chatID) {
		_, err := b.notifier.Send(ctx, chatID, "❌ Bu buyruq faqat adminlar uchun.", nil)
		return err
	}
	return b.startFlow(ctx, chatID, flow.FlowAddListing)
}

func (b *Bot) cmdCancel(ctx context.Context, chatID int64) error {
	if err := b.runtime.Clear(ctx, chatID); err != nil {
		return err
	}
	_, err := b.notifier.SendMenu(ctx, chatID, "❌ Bekor qilindi.",
		flow.MainMenu(b.profile.IsAdmin(chatID)))
	return err
}

func (b *Bot) cmdHealth(ctx context.Context, chatID int64) error {
	if !b.profile.IsAdmin(chatID) {
		_, err := b.notifier.Send(ctx, chatID, "❌ Bu buyruq faqat adminlar uchun.", nil)
		return err
	}

	dbStatus := "✅ OK"
	if err := b.store.Ping(ctx); err != nil {
		dbStatus = "❌ " + telegram.Escape(err.Error())
	}
	listings, _ := b.store.CountListings(ctx)
	bookings, _ := b.store.CountBookings(ctx)

	_, err := b.notifier.Send(ctx, chatID, fmt.Sprintf(
		"🩺 <b>Holat</b>\n\n"+
			"💾 Baza: %s\n"+
			"🗂 Listinglar: %d\n"+
			"📑 Bronlar: %d\n"+
			"⏱ Ishlash vaqti: %s\n"+
			"🏷 Versiya: %s",
		dbStatus, listings, bookings,
		time.Since(b.started).Round(time.Second), b.profile.Version), nil)
	return err
}

func (b *Bot) startFlow(ctx context.Context, chatID int64, flowID string) error {
	return b.runtime.Start(ctx, chatID, flowID, nil)
}

// messageUpdate converts a Telegram message into a runtime update.
func messageUpdate(msg *tgbotapi.Message) *conversation.Update {
	upd := &conversation.Update{ChatID: msg.Chat.ID, Kind: conversation.KindText, Text: msg.Text}

	switch {
	case msg.Contact != nil:
		upd.Kind = conversation.KindContact
		upd.Contact = &conversation.Contact{
			Phone:        msg.Contact.PhoneNumber,
			OwnerChatID:  msg.Contact.UserID,
			SenderChatID: msg.From.ID,
			FirstName:    msg.Contact.FirstName,
			LastName:     msg.Contact.LastName,
		}
	case msg.Location != nil:
		upd.Kind = conversation.KindLocation
		upd.Location = &conversation.Location{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		}
	case len(msg.Photo) > 0:
		upd.Kind = conversation.KindPhoto
		// Largest resolution is last.
		upd.PhotoID = msg.Photo[len(msg.Photo)-1].FileID
		upd.Text = msg.Caption
	}
	return upd
}
