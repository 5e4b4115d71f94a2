package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	// StatusPendingPartner is the initial state: created, not yet delivered.
	StatusPendingPartner BookingStatus = "pending_partner"
	// StatusSent means the owner prompt was delivered.
	StatusSent BookingStatus = "sent"
	// Terminal states. Once reached the row is immutable.
	StatusAccepted BookingStatus = "accepted"
	StatusRejected BookingStatus = "rejected"
	StatusTimeout  BookingStatus = "timeout"
)

// Terminal reports whether the status is absorbing.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusTimeout:
		return true
	}
	return false
}

// BookingTTL is the accept/reject deadline measured from dispatch (or from
// creation when the booking was never dispatched).
const BookingTTL = 5 * time.Minute

// MaxGuests bounds the guest list of a single booking.
const MaxGuests = 10

// Payload carries the request details collected by the booking flow.
// The Kind tag mirrors the listing category so stored JSON can be validated
// on read.
type Payload struct {
	Kind       Category `json:"kind"`
	GuestCount int      `json:"guest_count"`
	GuestNames []string `json:"guest_names"`
	Phone      string   `json:"phone"`
	Date       string   `json:"date"`
	Note       string   `json:"note,omitempty"`
}

func (p *Payload) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("payload: unknown kind %q", p.Kind)
	}
	if p.GuestCount < 1 || p.GuestCount > MaxGuests {
		return fmt.Errorf("payload: guest count must be 1..%d", MaxGuests)
	}
	if len(p.GuestNames) < 1 || len(p.GuestNames) > MaxGuests {
		return fmt.Errorf("payload: guest names must have 1..%d entries", MaxGuests)
	}
	if len(p.GuestNames) != p.GuestCount {
		return fmt.Errorf("payload: %d guest names for %d guests", len(p.GuestNames), p.GuestCount)
	}
	if p.Phone == "" {
		return fmt.Errorf("payload: phone is required")
	}
	if len([]rune(p.Date)) < 3 {
		return fmt.Errorf("payload: date must be at least 3 chars")
	}
	return nil
}

// DecodePayload parses stored JSON and validates it against the tag.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Booking is a user's request against one listing.
type Booking struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	UserChatID       int64
	OwnerChatID      int64
	Payload          Payload
	Status           BookingStatus
	CreatedAt        time.Time
	DispatchedAt     *time.Time
	ExpiresAt        *time.Time
	PartnerMessageID *int
}

// ShortID is the 8-char identifier prefix used in callback tokens.
func (b *Booking) ShortID() string {
	return b.ID.String()[:8]
}

// CreateBooking inserts a row in pending_partner with the deadline already
// set. OwnerChatID is the denormalized listing owner at creation time.
type CreateBooking struct {
	ListingID   uuid.UUID
	UserChatID  int64
	OwnerChatID int64
	Payload     Payload
	ExpiresAt   time.Time
}

func (c *CreateBooking) Validate() error {
	if c.ListingID == uuid.Nil {
		return fmt.Errorf("booking: listing id is required")
	}
	if c.UserChatID == 0 {
		return fmt.Errorf("booking: user chat id is required")
	}
	return c.Payload.Validate()
}

// ExpiredBooking is one row returned by the atomic sweep, joined with the
// listing title and the owner's contact info for escalation.
type ExpiredBooking struct {
	ID             uuid.UUID
	UserChatID     int64
	OwnerChatID    int64
	ListingID      uuid.UUID
	ListingTitle   string
	OwnerPhone     string
	OwnerFirstName string
	OwnerLastName  string
	WasDispatched  bool
}
