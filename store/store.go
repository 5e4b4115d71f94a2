// Package store provides typed persistence for users, listings and bookings.
//
// All booking status transitions are expressed as guarded UPDATEs inside the
// driver; the caller never reads-then-writes a status.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/safartrip/safarbot/internal/profile"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUnavailable wraps connection-level failures. The caller decides whether
// to retry or report; the store never swallows them.
var ErrUnavailable = errors.New("store: database unavailable")

// Driver is the database-specific implementation behind Store.
type Driver interface {
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error)
	GetUser(ctx context.Context, chatID int64) (*User, error)

	CreateListing(ctx context.Context, create *Listing) (*Listing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	GetListingByPrefix(ctx context.Context, prefix string) (*Listing, error)
	ListListings(ctx context.Context, find *FindListing) ([]*Listing, error)
	SetListingActive(ctx context.Context, id uuid.UUID, ownerChatID int64, active bool) (bool, error)
	DeleteListing(ctx context.Context, id uuid.UUID, ownerChatID int64) (bool, error)
	CountListings(ctx context.Context) (int64, error)

	CreateBooking(ctx context.Context, create *CreateBooking) (*Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingByPrefix(ctx context.Context, prefix string) (*Booking, error)
	ListBookingsByUser(ctx context.Context, userChatID int64, limit int) ([]*Booking, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, partnerMessageID int) (bool, error)
	Decide(ctx context.Context, id uuid.UUID, ownerChatID int64, status BookingStatus) (bool, error)
	SweepExpired(ctx context.Context) ([]*ExpiredBooking, error)
	CountBookings(ctx context.Context) (int64, error)
}

// Store provides database access to all persistent objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{driver: driver, profile: profile}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Reset drops and recreates the schema. Refused unless ALLOW_DB_RESET=true.
func (s *Store) Reset(ctx context.Context) error {
	if !s.profile.AllowDBReset {
		return errors.New("store: schema reset blocked, set ALLOW_DB_RESET=true to unlock")
	}
	return s.driver.Reset(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error) {
	return s.driver.UpsertUser(ctx, upsert)
}

func (s *Store) GetUser(ctx context.Context, chatID int64) (*User, error) {
	return s.driver.GetUser(ctx, chatID)
}

func (s *Store) CreateListing(ctx context.Context, create *Listing) (*Listing, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateListing(ctx, create)
}

func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.driver.GetListing(ctx, id)
}

func (s *Store) GetListingByPrefix(ctx context.Context, prefix string) (*Listing, error) {
	return s.driver.GetListingByPrefix(ctx, prefix)
}

func (s *Store) ListListings(ctx context.Context, find *FindListing) ([]*Listing, error) {
	return s.driver.ListListings(ctx, find)
}

func (s *Store) SetListingActive(ctx context.Context, id uuid.UUID, ownerChatID int64, active bool) (bool, error) {
	return s.driver.SetListingActive(ctx, id, ownerChatID, active)
}

func (s *Store) DeleteListing(ctx context.Context, id uuid.UUID, ownerChatID int64) (bool, error) {
	return s.driver.DeleteListing(ctx, id, ownerChatID)
}

func (s *Store) CountListings(ctx context.Context) (int64, error) {
	return s.driver.CountListings(ctx)
}

func (s *Store) CreateBooking(ctx context.Context, create *CreateBooking) (*Booking, error) {
	return s.driver.CreateBooking(ctx, create)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.driver.GetBooking(ctx, id)
}

func (s *Store) GetBookingByPrefix(ctx context.Context, prefix string) (*Booking, error) {
	return s.driver.GetBookingByPrefix(ctx, prefix)
}

func (s *Store) ListBookingsByUser(ctx context.Context, userChatID int64, limit int) ([]*Booking, error) {
	return s.driver.ListBookingsByUser(ctx, userChatID, limit)
}

func (s *Store) MarkDispatched(ctx context.Context, id uuid.UUID, partnerMessageID int) (bool, error) {
	return s.driver.MarkDispatched(ctx, id, partnerMessageID)
}

func (s *Store) Decide(ctx context.Context, id uuid.UUID, ownerChatID int64, status BookingStatus) (bool, error) {
	return s.driver.Decide(ctx, id, ownerChatID, status)
}

func (s *Store) SweepExpired(ctx context.Context) ([]*ExpiredBooking, error) {
	return s.driver.SweepExpired(ctx)
}

func (s *Store) CountBookings(ctx context.Context) (int64, error) {
	return s.driver.CountBookings(ctx)
}
