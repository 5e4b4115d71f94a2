package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/flow"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

// cmdMyListings shows the owner console: every listing of the caller
// with toggle and delete actions.
func (b *Bot) cmdMyListings(ctx context.Context, chatID int64) error {
	if !b.profile.IsAdmin(chatID) {
		_, err := b.notifier.Send(ctx, chatID, "❌ Bu buyruq faqat adminlar uchun.", nil)
		return err
	}

	listings, err := b.store.ListListings(ctx, &store.FindListing{OwnerChatID: &chatID})
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		_, err := b.notifier.Send(ctx, chatID,
			"🗂 Sizda hali listinglar yo'q.\n\nYangi qo'shish: /add", nil)
		return err
	}

	kb := flow.MyListingsKeyboard(listings)
	_, err = b.notifier.Send(ctx, chatID,
		fmt.Sprintf("🗂 <b>Mening listinglarim</b> (%d ta):", len(listings)), &kb)
	return err
}

// handleConsoleCallback serves the myl:* actions. Ownership is enforced
// twice: here for display and in the store's guarded updates.
func (b *Bot) handleConsoleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	chatID := cb.Message.Chat.ID
	if !b.profile.IsAdmin(chatID) {
		return nil
	}

	parts := strings.SplitN(cb.Data, ":", 3)
	action := parts[1]
	shortID := ""
	if len(parts) == 3 {
		shortID = parts[2]
	}

	switch action {
	case "back":
		return b.cmdMyListings(ctx, chatID)
	case "view":
		return b.consoleView(ctx, chatID, cb.Message.MessageID, shortID)
	case "toggle":
		return b.consoleToggle(ctx, chatID, cb, shortID)
	case "del":
		return b.consoleDeleteConfirm(ctx, chatID, cb.Message.MessageID, shortID)
	case "delok":
		return b.consoleDelete(ctx, chatID, cb, shortID)
	}
	return nil
}

func (b *Bot) consoleListing(ctx context.Context, chatID int64, shortID string) (*store.Listing, error) {
	listing, err := b.store.GetListingByPrefix(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerChatID != chatID {
		return nil, store.ErrNotFound
	}
	return listing, nil
}

func (b *Bot) consoleView(ctx context.Context, chatID int64, messageID int, shortID string) error {
	listing, err := b.consoleListing(ctx, chatID, shortID)
	if err != nil {
		return b.notifier.Edit(ctx, chatID, messageID, "❌ Listing topilmadi.", nil)
	}

	status := "🟢 Faol"
	if !listing.IsActive {
		status = "🔴 O'chirilgan"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", telegram.Escape(listing.Title))
	fmt.Fprintf(&sb, "📂 %s\n", flow.CategoryLabel(listing.Category))
	if listing.Subtype != nil {
		fmt.Fprintf(&sb, "🏨 %s\n", telegram.Escape(*listing.Subtype))
	}
	if listing.Description != "" {
		fmt.Fprintf(&sb, "📝 %s\n", telegram.Escape(listing.Description))
	}
	if listing.PriceFrom != nil {
		fmt.Fprintf(&sb, "💰 %d %s\n", *listing.PriceFrom, listing.Currency)
	}
	if listing.Phone != "" {
		fmt.Fprintf(&sb, "📱 %s\n", telegram.Escape(listing.Phone))
	}
	fmt.Fprintf(&sb, "📷 %d ta rasm\n", len(listing.Photos))
	fmt.Fprintf(&sb, "\nHolat: %s", status)

	kb := flow.MyListingKeyboard(listing)
	return b.notifier.Edit(ctx, chatID, messageID, sb.String(), &kb)
}

func (b *Bot) consoleToggle(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery, shortID string) error {
	listing, err := b.consoleListing(ctx, chatID, shortID)
	if err != nil {
		return b.notifier.Edit(ctx, chatID, cb.Message.MessageID, "❌ Listing topilmadi.", nil)
	}

	ok, err := b.store.SetListingActive(ctx, listing.ID, chatID, !listing.IsActive)
	if err != nil {
		return err
	}
	if !ok {
		return b.notifier.Edit(ctx, chatID, cb.Message.MessageID, "❌ Listing topilmadi.", nil)
	}
	return b.consoleView(ctx, chatID, cb.Message.MessageID, shortID)
}

func (b *Bot) consoleDeleteConfirm(ctx context.Context, chatID int64, messageID int, shortID string) error {
	listing, err := b.consoleListing(ctx, chatID, shortID)
	if err != nil {
		return b.notifier.Edit(ctx, chatID, messageID, "❌ Listing topilmadi.", nil)
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Ha, o'chirilsin", "myl:delok:"+shortID),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Yo'q", "myl:view:"+shortID),
		),
	)
	return b.notifier.Edit(ctx, chatID, messageID,
		"⚠️ <b>"+telegram.Escape(listing.Title)+"</b> o'chirilsinmi?\n\n"+
			"Unga bog'liq bronlar ham o'chadi.", &kb)
}

func (b *Bot) consoleDelete(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery, shortID string) error {
	listing, err := b.consoleListing(ctx, chatID, shortID)
	if err != nil {
		return b.notifier.Edit(ctx, chatID, cb.Message.MessageID, "❌ Listing topilmadi.", nil)
	}

	ok, err := b.store.DeleteListing(ctx, listing.ID, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return b.notifier.Edit(ctx, chatID, cb.Message.MessageID, "❌ Listing topilmadi.", nil)
	}
	return b.notifier.Edit(ctx, chatID, cb.Message.MessageID,
		"🗑 <b>"+telegram.Escape(listing.Title)+"</b> o'chirildi.", nil)
}
