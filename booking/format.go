package booking

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

// Callback tokens carried by the owner decision keyboard.
const (
	AcceptPrefix = "accept:"
	RejectPrefix = "reject:"
)

var categoryHeaders = map[store.Category]string{
	store.CategoryGuide: "🧭 <b>YANGI GID SO'ROVI</b>",
	store.CategoryHotel: "🏨 <b>YANGI MEHMONXONA BUYURTMASI</b>",
	store.CategoryTaxi:  "🚖 <b>YANGI TAKSI SO'ROVI</b>",
	store.CategoryPlace: "📍 <b>YANGI JOY SO'ROVI</b>",
}

// DecisionKeyboard builds the accept/reject buttons shown to the owner.
func DecisionKeyboard(shortID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Qabul qilish", AcceptPrefix+shortID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Rad etish", RejectPrefix+shortID),
		),
	)
}

// OwnerPrompt renders the booking request sent to the listing owner.
func OwnerPrompt(b *store.Booking, listing *store.Listing, user *store.User) string {
	header, ok := categoryHeaders[b.Payload.Kind]
	if !ok {
		header = "📋 <b>Yangi buyurtma</b>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s #%s\n\n", header, b.ShortID())
	fmt.Fprintf(&sb, "🏷 <b>Xizmat:</b> %s\n", telegram.Escape(listing.Title))

	name := "—"
	if user != nil && user.FullName() != "" {
		name = telegram.Escape(user.FullName())
	}
	fmt.Fprintf(&sb, "👤 <b>Mijoz:</b> %s\n", name)
	fmt.Fprintf(&sb, "📱 <b>Telefon:</b> %s\n\n", telegram.Escape(b.Payload.Phone))

	fmt.Fprintf(&sb, "📅 <b>Sana:</b> %s\n", telegram.Escape(b.Payload.Date))
	fmt.Fprintf(&sb, "👥 <b>Mehmonlar:</b> %d\n", b.Payload.GuestCount)
	if len(b.Payload.GuestNames) > 0 {
		fmt.Fprintf(&sb, "📋 <b>Ismlar:</b> %s\n", telegram.Escape(strings.Join(b.Payload.GuestNames, ", ")))
	}
	note := "—"
	if b.Payload.Note != "" {
		note = telegram.Escape(b.Payload.Note)
	}
	fmt.Fprintf(&sb, "📝 <b>Izoh:</b> %s", note)
	return sb.String()
}

// MonitorCopy is the admin's read-only mirror of a dispatched booking.
func MonitorCopy(b *store.Booking, listing *store.Listing, user *store.User) string {
	return fmt.Sprintf(
		"👁 <b>Kuzatuv nusxasi</b> #%s\n\n%s",
		b.ShortID(), OwnerPrompt(b, listing, user))
}

// MapLink is the follow-up message pointing the owner at the meeting
// place when the listing carries coordinates.
func MapLink(lat, lon float64) string {
	return fmt.Sprintf(
		"📍 <a href=\"https://maps.google.com/maps?q=%f,%f\">Xaritada ko'rish</a>", lat, lon)
}

func userAcceptedText(shortID, title string) string {
	return fmt.Sprintf(
		"✅ <b>Buyurtmangiz qabul qilindi!</b>\n\n"+
			"🏷 <b>Xizmat:</b> %s\n"+
			"🆔 Buyurtma: <code>%s</code>\n\n"+
			"Xizmat egasi tez orada siz bilan bog'lanadi.",
		telegram.Escape(title), shortID)
}

func userRejectedText(shortID, title string) string {
	return fmt.Sprintf(
		"❌ <b>Buyurtmangiz rad etildi</b>\n\n"+
			"🏷 <b>Xizmat:</b> %s\n"+
			"🆔 Buyurtma: <code>%s</code>\n\n"+
			"Iltimos, boshqa xizmatni tanlang yoki keyinroq urinib ko'ring.",
		telegram.Escape(title), shortID)
}

func userTimeoutText(title string) string {
	if title == "" {
		title = "Xizmat"
	}
	return fmt.Sprintf(
		"⏰ <b>Vaqt tugadi</b>\n\n"+
			"Sizning <b>%s</b> bo'yicha buyurtmangizga belgilangan vaqt ichida "+
			"javob bo'lmadi.\n\n"+
			"Iltimos, keyinroq qaytadan urinib ko'ring yoki boshqa xizmatni tanlang.",
		telegram.Escape(title))
}

// ownerDecisionEdit replaces the owner's prompt after a decision so the
// buttons cannot be pressed twice.
func ownerDecisionEdit(shortID string, accepted bool) string {
	emoji, verdict := "✅", "Qabul qilindi"
	if !accepted {
		emoji, verdict = "❌", "Rad etildi"
	}
	return fmt.Sprintf("%s <b>Buyurtma %s</b>\n\nBuyurtma ID: <code>%s</code>",
		emoji, verdict, shortID)
}

// adminDecisionCopy mirrors an owner decision to the monitoring admins.
func adminDecisionCopy(shortID, title string, ownerChatID int64, accepted bool) string {
	emoji, verdict := "✅", "qabul qildi"
	if !accepted {
		emoji, verdict = "❌", "rad etdi"
	}
	return fmt.Sprintf(
		"%s <b>Ega buyurtmani %s</b>\n\n"+
			"🏷 Xizmat: %s\n"+
			"🆔 Buyurtma: <code>%s</code>\n"+
			"👤 Ega chat ID: <code>%d</code>",
		emoji, verdict, telegram.Escape(title), shortID, ownerChatID)
}

func adminUndeliveredText(b *store.Booking, reason string, owner *store.User) string {
	contact := "—"
	if owner != nil {
		contact = telegram.Escape(strings.TrimSpace(owner.FullName() + " " + owner.Phone))
	}
	return fmt.Sprintf(
		"⚠️ <b>Buyurtma yetkazilmadi</b>\n\n"+
			"🆔 Buyurtma: <code>%s</code>\n"+
			"👤 Egasi: %s (chat ID: <code>%d</code>)\n"+
			"❌ Sabab: %s\n\n"+
			"Iltimos, mijoz bilan bog'laning.",
		b.ShortID(), contact, b.OwnerChatID, telegram.Escape(reason))
}

// adminExpiredText is the escalation for every timed out booking. The
// wording says whether the owner ever saw the prompt.
func adminExpiredText(e *store.ExpiredBooking) string {
	contact := strings.TrimSpace(e.OwnerFirstName + " " + e.OwnerLastName)
	if contact == "" {
		contact = "—"
	}
	phone := e.OwnerPhone
	if phone == "" {
		phone = "—"
	}

	header := "⏰ <b>Ega javob bermadi</b>"
	tail := "Mijoz belgilangan vaqt ichida javob olmadi, iltimos ega bilan bog'laning."
	if !e.WasDispatched {
		header = "⏰ <b>Buyurtma egasiga yetib bormay tugadi</b>"
		tail = "Buyurtma egasiga umuman yetkazilmagan, iltimos qo'lda bog'laning."
	}
	return fmt.Sprintf(
		"%s\n\n"+
			"🆔 Buyurtma: <code>%s</code>\n"+
			"🏷 Xizmat: %s\n"+
			"👤 Egasi: %s (chat ID: <code>%d</code>)\n"+
			"📱 Telefon: %s\n\n"+
			"%s",
		header, e.ID.String()[:8], telegram.Escape(e.ListingTitle),
		telegram.Escape(contact), e.OwnerChatID, telegram.Escape(phone), tail)
}
