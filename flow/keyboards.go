package flow

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/store"
)

// Main menu button labels, matched verbatim against incoming text.
const (
	BtnBrowse     = "🧭 Sayohatni boshlash"
	BtnHelp       = "❓ Yordam"
	BtnAddListing = "➕ Listing qo'shish"
	BtnMyListings = "🗂 Mening listinglarim"

	btnUseRegisteredPhone = "✅ Shu raqam"
	btnOtherPhone         = "✏️ Boshqa raqam"
)

var categoryLabels = []struct {
	code  store.Category
	label string
}{
	{store.CategoryHotel, "🏨 Mehmonxona"},
	{store.CategoryGuide, "🧑‍💼 Gid"},
	{store.CategoryTaxi, "🚕 Taxi"},
	{store.CategoryPlace, "📍 Diqqatga sazovor joy"},
}

var hotelSubtypeLabels = []struct {
	code  string
	label string
}{
	{"shale", "Shale"},
	{"uy_mehmonxona", "Uy mehmonxona"},
	{"mehmonxona", "Mehmonxona"},
	{"kapsula", "Kapsula mehmonxona"},
	{"dacha", "Dacha"},
}

// CategoryLabel returns the display name of a category code.
func CategoryLabel(c store.Category) string {
	for _, entry := range categoryLabels {
		if entry.code == c {
			return entry.label
		}
	}
	return string(c)
}

// MainMenu is the persistent reply keyboard. Admins see the listing
// management rows.
func MainMenu(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(BtnBrowse)},
		{tgbotapi.NewKeyboardButton(BtnHelp)},
	}
	if isAdmin {
		rows = append(rows,
			[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(BtnAddListing)},
			[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(BtnMyListings)},
		)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func contactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Telefon raqamni yuborish")),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func phoneChoiceKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnUseRegisteredPhone),
			tgbotapi.NewKeyboardButton(btnOtherPhone),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func regionKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏔 Zomin", prefix+":region:zomin"),
		),
	)
}

func categoryKeyboard(prefix string, backToken string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(categoryLabels)+1)
	for _, entry := range categoryLabels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(entry.label, fmt.Sprintf("%s:cat:%s", prefix, entry.code)),
		))
	}
	if backToken != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Orqaga", backToken),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func hotelSubtypeKeyboard(prefix string, backToken string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(hotelSubtypeLabels)+1)
	for _, entry := range hotelSubtypeLabels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(entry.label, fmt.Sprintf("%s:sub:%s", prefix, entry.code)),
		))
	}
	if backToken != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Orqaga", backToken),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func listingCardKeyboard(l *store.Listing, index, total int) tgbotapi.InlineKeyboardMarkup {
	first := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✅ Tanlash", "uf:pick:"+l.ShortID()),
	}
	if l.HasLocation() {
		first = append(first, tgbotapi.NewInlineKeyboardButtonData("📍 Lokatsiya", "uf:loc:"+l.ShortID()))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{first}

	nav := []tgbotapi.InlineKeyboardButton{}
	if index > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Oldingi", fmt.Sprintf("uf:page:%d", index-1)))
	}
	if index < total-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Keyingi ➡️", fmt.Sprintf("uf:page:%d", index+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Kategoriyaga", "uf:back:category"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func listingDetailKeyboard(l *store.Listing) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("📝 Bron qilish", "uf:book:"+l.ShortID())},
	}
	if l.HasLocation() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📍 Lokatsiya", "uf:loc:"+l.ShortID()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Orqaga", "uf:back:list"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func bookingConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Tasdiqlash", "uf:bconfirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Bekor", "uf:bcancel"),
		),
	)
}

func wizardConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Saqlash", "wiz:save"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Bekor qilish", "wiz:cancel"),
		),
	)
}

// MyListingsKeyboard lists the owner's listings as buttons.
func MyListingsKeyboard(listings []*store.Listing) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(listings))
	for _, l := range listings {
		status := "🟢"
		if !l.IsActive {
			status = "🔴"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", status, l.Title), "myl:view:"+l.ShortID()),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// MyListingKeyboard offers toggle/delete actions on one listing.
func MyListingKeyboard(l *store.Listing) tgbotapi.InlineKeyboardMarkup {
	toggle := "🔴 O'chirib qo'yish"
	if !l.IsActive {
		toggle = "🟢 Yoqish"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, "myl:toggle:"+l.ShortID()),
			tgbotapi.NewInlineKeyboardButtonData("🗑 O'chirish", "myl:del:"+l.ShortID()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Orqaga", "myl:back"),
		),
	)
}
