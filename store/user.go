package store

import (
	"fmt"
	"regexp"
	"time"
)

// phonePattern is the stored form: a single leading + and 11..16 digits.
var phonePattern = regexp.MustCompile(`^\+\d{11,16}$`)

// User is one record per chat identity that completed registration.
type User struct {
	ChatID    int64
	Phone     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins first and last name for display.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UpsertUser creates the User on first registration and updates it on
// re-registration. Keyed by ChatID.
type UpsertUser struct {
	ChatID    int64
	Phone     string
	FirstName string
	LastName  string
}

func (u *UpsertUser) Validate() error {
	if u.ChatID == 0 {
		return fmt.Errorf("user: chat id is required")
	}
	if !phonePattern.MatchString(u.Phone) {
		return fmt.Errorf("user: phone %q must match +<11..16 digits>", u.Phone)
	}
	if l := len([]rune(u.FirstName)); l < 2 || l > 60 {
		return fmt.Errorf("user: first name must be 2..60 chars")
	}
	if l := len([]rune(u.LastName)); l < 2 || l > 60 {
		return fmt.Errorf("user: last name must be 2..60 chars")
	}
	return nil
}

// ValidPhone reports whether phone is in the stored E.164 form.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
