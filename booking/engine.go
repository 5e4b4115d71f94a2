// Package booking implements the request lifecycle: creation, owner
// dispatch, accept/reject decisions and expiry.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/safartrip/safarbot/metrics"
	"github.com/safartrip/safarbot/store"
)

// Decision is an owner verdict on a booking.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Outcome tells the transport layer how to answer a decision callback.
type Outcome int

const (
	// OutcomeApplied means the decision won the race and notifications
	// went out.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyFinalized means the booking reached a terminal state
	// first; the stored status says which.
	OutcomeAlreadyFinalized
	// OutcomeUnauthorized means the presser does not own the listing.
	OutcomeUnauthorized
	// OutcomeNotFound means no booking matches the callback token.
	OutcomeNotFound
)

// Engine coordinates the booking lifecycle on top of the store.
type Engine struct {
	store      *store.Store
	dispatcher *Dispatcher
	notifier   Notifier
	admins     []int64
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewEngine wires the lifecycle engine.
func NewEngine(st *store.Store, dispatcher *Dispatcher, notifier Notifier, admins []int64, m *metrics.Metrics) *Engine {
	return &Engine{
		store:      st,
		dispatcher: dispatcher,
		notifier:   notifier,
		admins:     admins,
		metrics:    m,
		now:        time.Now,
	}
}

// Create persists a booking against the listing and dispatches it to
// the owner. The booking exists even when dispatch fails; the expiry
// clock starts immediately either way. The second return reports
// whether the owner actually received the prompt, so the caller can
// word the confirmation accordingly.
func (e *Engine) Create(ctx context.Context, listing *store.Listing, userChatID int64, payload store.Payload) (*store.Booking, bool, error) {
	create := &store.CreateBooking{
		ListingID:   listing.ID,
		UserChatID:  userChatID,
		OwnerChatID: listing.OwnerChatID,
		Payload:     payload,
		ExpiresAt:   e.now().Add(store.BookingTTL),
	}
	b, err := e.store.CreateBooking(ctx, create)
	if err != nil {
		return nil, false, err
	}
	e.metrics.BookingCreated()

	delivered, err := e.dispatcher.Dispatch(ctx, b)
	if err != nil {
		slog.Error("booking: dispatch failed", "booking", b.ShortID(), "error", err)
	}
	return b, delivered, nil
}

// Decide applies an owner decision identified by the callback token
// prefix. The status transition is a single guarded update; this method
// only classifies the result and fans out notifications.
func (e *Engine) Decide(ctx context.Context, prefix string, ownerChatID int64, decision Decision) (Outcome, *store.Booking, error) {
	b, err := e.store.GetBookingByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OutcomeNotFound, nil, nil
		}
		return OutcomeNotFound, nil, err
	}

	target := store.StatusAccepted
	if decision == DecisionReject {
		target = store.StatusRejected
	}

	applied, err := e.store.Decide(ctx, b.ID, ownerChatID, target)
	if err != nil {
		return OutcomeNotFound, nil, err
	}
	if !applied {
		// The guard lost. Re-read to tell a stranger from a settled row.
		current, err := e.store.GetBooking(ctx, b.ID)
		if err != nil {
			return OutcomeNotFound, nil, err
		}
		if current.OwnerChatID != ownerChatID {
			return OutcomeUnauthorized, current, nil
		}
		return OutcomeAlreadyFinalized, current, nil
	}

	b.Status = target
	e.metrics.Transition(string(target))
	slog.Info("booking: decision applied",
		"booking", b.ShortID(), "decision", decision, "owner", ownerChatID)
	e.notifyDecision(ctx, b, decision)
	return OutcomeApplied, b, nil
}

// OwnerDecisionText renders the in-place replacement of the owner's
// prompt once a decision lands.
func (e *Engine) OwnerDecisionText(b *store.Booking, decision Decision) string {
	return ownerDecisionEdit(b.ShortID(), decision == DecisionAccept)
}

func (e *Engine) notifyDecision(ctx context.Context, b *store.Booking, decision Decision) {
	title := ""
	if listing, err := e.store.GetListing(ctx, b.ListingID); err == nil {
		title = listing.Title
	}
	accepted := decision == DecisionAccept

	text := userAcceptedText(b.ShortID(), title)
	if !accepted {
		text = userRejectedText(b.ShortID(), title)
	}
	if _, err := e.notifier.Send(ctx, b.UserChatID, text, nil); err != nil {
		slog.Error("booking: customer notice not delivered",
			"booking", b.ShortID(), "user", b.UserChatID, "error", err)
	}

	// Admins mirror every verdict; the deciding owner already knows.
	copyText := adminDecisionCopy(b.ShortID(), title, b.OwnerChatID, accepted)
	for _, admin := range e.admins {
		if admin == b.OwnerChatID {
			continue
		}
		if _, err := e.notifier.Send(ctx, admin, copyText, nil); err != nil {
			slog.Error("booking: decision copy not delivered",
				"booking", b.ShortID(), "admin", admin, "error", err)
		}
	}
}

// HandleExpired notifies users about timed out bookings and escalates
// every one of them to the admins with the owner's contact info. One
// broken row never blocks the rest.
func (e *Engine) HandleExpired(ctx context.Context, rows []*store.ExpiredBooking) {
	for _, row := range rows {
		e.metrics.Transition(string(store.StatusTimeout))

		if _, err := e.notifier.Send(ctx, row.UserChatID, userTimeoutText(row.ListingTitle), nil); err != nil {
			slog.Error("booking: timeout notice not delivered",
				"booking", row.ID, "user", row.UserChatID, "error", err)
		}

		text := adminExpiredText(row)
		for _, admin := range e.admins {
			if _, err := e.notifier.Send(ctx, admin, text, nil); err != nil {
				slog.Error("booking: expiry escalation not delivered",
					"admin", admin, "error", err)
			}
		}
	}
}
