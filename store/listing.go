package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category partitions the catalog.
type Category string

const (
	CategoryHotel Category = "hotel"
	CategoryGuide Category = "guide"
	CategoryTaxi  Category = "taxi"
	CategoryPlace Category = "place"
)

// Categories lists all categories in menu order.
var Categories = []Category{CategoryHotel, CategoryGuide, CategoryTaxi, CategoryPlace}

func (c Category) Valid() bool {
	switch c {
	case CategoryHotel, CategoryGuide, CategoryTaxi, CategoryPlace:
		return true
	}
	return false
}

// NeedsLocation reports whether listings of this category must carry
// coordinates and at least one photo.
func (c Category) NeedsLocation() bool {
	return c == CategoryHotel || c == CategoryPlace
}

// HasPrice reports whether listings of this category may carry price_from.
func (c Category) HasPrice() bool {
	return c == CategoryHotel || c == CategoryTaxi
}

// RegionZomin is the only region served so far.
const RegionZomin = "zomin"

// HotelSubtypes are the admissible subtype tags for the hotel category.
var HotelSubtypes = []string{"shale", "uy_mehmonxona", "mehmonxona", "kapsula", "dacha"}

func ValidHotelSubtype(s string) bool {
	for _, st := range HotelSubtypes {
		if st == s {
			return true
		}
	}
	return false
}

// MaxListingPhotos caps the photo sequence per listing.
const MaxListingPhotos = 5

// Listing is an offer published by an owner.
type Listing struct {
	ID          uuid.UUID
	Region      string
	Category    Category
	Subtype     *string
	Title       string
	Description string
	PriceFrom   *int64
	Currency    string
	Phone       string
	OwnerChatID int64
	Latitude    *float64
	Longitude   *float64
	Address     string
	Photos      []string
	IsActive    bool
	CreatedAt   time.Time
}

// ShortID is the 8-char identifier prefix used in callback tokens.
func (l *Listing) ShortID() string {
	return l.ID.String()[:8]
}

// HasLocation reports whether both coordinates are present.
func (l *Listing) HasLocation() bool {
	return l.Latitude != nil && l.Longitude != nil
}

func (l *Listing) Validate() error {
	if !l.Category.Valid() {
		return fmt.Errorf("listing: unknown category %q", l.Category)
	}
	if l.Region == "" {
		return fmt.Errorf("listing: region is required")
	}
	if len([]rune(l.Title)) < 3 {
		return fmt.Errorf("listing: title must be at least 3 chars")
	}
	if l.OwnerChatID == 0 {
		return fmt.Errorf("listing: owner chat id is required")
	}
	if (l.Latitude == nil) != (l.Longitude == nil) {
		return fmt.Errorf("listing: latitude and longitude must be set together")
	}
	if len(l.Photos) > MaxListingPhotos {
		return fmt.Errorf("listing: at most %d photos", MaxListingPhotos)
	}
	if l.Category.NeedsLocation() {
		if !l.HasLocation() {
			return fmt.Errorf("listing: category %s requires coordinates", l.Category)
		}
		if len(l.Photos) < 1 {
			return fmt.Errorf("listing: category %s requires at least one photo", l.Category)
		}
	}
	if l.PriceFrom != nil {
		if !l.Category.HasPrice() {
			return fmt.Errorf("listing: category %s does not carry a price", l.Category)
		}
		if *l.PriceFrom < 0 {
			return fmt.Errorf("listing: price must be non-negative")
		}
	}
	if l.Subtype != nil && l.Category == CategoryHotel && !ValidHotelSubtype(*l.Subtype) {
		return fmt.Errorf("listing: unknown hotel subtype %q", *l.Subtype)
	}
	return nil
}

// FindListing filters the catalog. Nil fields are unconstrained.
type FindListing struct {
	Region      *string
	Category    *Category
	Subtype     *string
	OwnerChatID *int64
	ActiveOnly  bool
}
