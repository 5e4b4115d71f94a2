package booking

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safartrip/safarbot/metrics"
	"github.com/safartrip/safarbot/store"
)

// Notifier is the slice of the Telegram plugin the booking core sends
// through.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
}

// Dispatcher delivers fresh bookings to listing owners and escalates to
// the admins when the owner cannot be reached. Delivery failure never
// fails the booking; the row stays pending and the sweeper finishes it.
type Dispatcher struct {
	store    *store.Store
	notifier Notifier
	admins   []int64
	metrics  *metrics.Metrics
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(st *store.Store, notifier Notifier, admins []int64, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{store: st, notifier: notifier, admins: admins, metrics: m}
}

// Dispatch sends the owner prompt with the accept/reject keyboard and
// marks the booking sent. Returns whether the owner received it.
func (d *Dispatcher) Dispatch(ctx context.Context, b *store.Booking) (bool, error) {
	listing, err := d.store.GetListing(ctx, b.ListingID)
	if err != nil {
		return false, err
	}
	user, err := d.store.GetUser(ctx, b.UserChatID)
	if err != nil {
		slog.Warn("dispatch: customer profile missing", "booking", b.ShortID(), "error", err)
		user = nil
	}

	if b.OwnerChatID == 0 {
		d.metrics.DispatchOutcome("no_owner")
		d.escalate(ctx, b, "Xizmat egasi Telegram hisobiga ulanmagan")
		return false, nil
	}

	keyboard := DecisionKeyboard(b.ShortID())
	messageID, err := d.notifier.Send(ctx, b.OwnerChatID, OwnerPrompt(b, listing, user), &keyboard)
	if err != nil {
		slog.Error("dispatch: owner unreachable",
			"booking", b.ShortID(), "owner", b.OwnerChatID, "error", err)
		d.metrics.DispatchOutcome("unreachable")
		d.escalate(ctx, b, "Xabar yuborishda xatolik")
		return false, nil
	}

	if _, err := d.store.MarkDispatched(ctx, b.ID, messageID); err != nil {
		return false, err
	}
	d.metrics.DispatchOutcome("sent")
	slog.Info("dispatch: booking delivered", "booking", b.ShortID(), "owner", b.OwnerChatID)

	// Best effort extras; the booking is already in flight.
	if listing.HasLocation() {
		if _, err := d.notifier.Send(ctx, b.OwnerChatID, MapLink(*listing.Latitude, *listing.Longitude), nil); err != nil {
			slog.Warn("dispatch: map link not delivered", "booking", b.ShortID(), "error", err)
		}
	}
	d.monitorCopy(ctx, b, listing, user)
	return true, nil
}

// monitorCopy mirrors the prompt to every admin except an admin who owns
// the listing, who already got the real prompt.
func (d *Dispatcher) monitorCopy(ctx context.Context, b *store.Booking, listing *store.Listing, user *store.User) {
	text := MonitorCopy(b, listing, user)
	for _, admin := range d.admins {
		if admin == b.OwnerChatID {
			continue
		}
		if _, err := d.notifier.Send(ctx, admin, text, nil); err != nil {
			slog.Warn("dispatch: monitor copy not delivered", "admin", admin, "error", err)
		}
	}
}

// escalate tells the admins a booking needs manual follow-up.
func (d *Dispatcher) escalate(ctx context.Context, b *store.Booking, reason string) {
	owner, err := d.store.GetUser(ctx, b.OwnerChatID)
	if err != nil {
		owner = nil
	}
	text := adminUndeliveredText(b, reason, owner)
	for _, admin := range d.admins {
		if _, err := d.notifier.Send(ctx, admin, text, nil); err != nil {
			slog.Error("dispatch: escalation not delivered", "admin", admin, "error", err)
		}
	}
}
