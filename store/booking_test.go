package store

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func validPayload() Payload {
	return Payload{
		Kind:       CategoryHotel,
		GuestCount: 2,
		GuestNames: []string{"Ali Valiyev", "Vali Aliyev"},
		Phone:      "+998901234567",
		Date:       "2026-09-01",
	}
}

func TestPayloadValidate(t *testing.T) {
	valid := validPayload()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Payload)
	}{
		{"unknown kind", func(p *Payload) { p.Kind = "spaceship" }},
		{"zero guests", func(p *Payload) { p.GuestCount = 0 }},
		{"too many guests", func(p *Payload) { p.GuestCount = MaxGuests + 1 }},
		{"no guest names", func(p *Payload) { p.GuestNames = nil }},
		{"name count mismatch", func(p *Payload) { p.GuestNames = []string{"Ali Valiyev"} }},
		{"no phone", func(p *Payload) { p.Phone = "" }},
		{"short date", func(p *Payload) { p.Date = "1." }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestDecodePayload(t *testing.T) {
	raw, err := json.Marshal(validPayload())
	require.NoError(t, err)

	p, err := DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, CategoryHotel, p.Kind)
	assert.Equal(t, 2, p.GuestCount)

	_, err = DecodePayload([]byte(`{broken`))
	assert.Error(t, err)

	// Well-formed JSON that fails validation is rejected too.
	_, err = DecodePayload([]byte(`{"kind":"hotel","guest_count":0}`))
	assert.Error(t, err)
}

func TestBookingStatusTerminal(t *testing.T) {
	assert.False(t, StatusPendingPartner.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.True(t, StatusAccepted.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusTimeout.Terminal())
}

func TestCreateBookingValidate(t *testing.T) {
	create := &CreateBooking{
		ListingID:  mustUUID(t, "a1b2c3d4-0000-0000-0000-000000000000"),
		UserChatID: 200,
		Payload:    validPayload(),
	}
	require.NoError(t, create.Validate())

	create.UserChatID = 0
	assert.Error(t, create.Validate())

	create.UserChatID = 200
	create.ListingID = uuid.Nil
	assert.Error(t, create.Validate())
}

func TestUpsertUserValidate(t *testing.T) {
	upsert := &UpsertUser{ChatID: 200, Phone: "+998901234567", FirstName: "Ali", LastName: "Valiyev"}
	require.NoError(t, upsert.Validate())

	assert.True(t, ValidPhone("+998901234567"))
	assert.False(t, ValidPhone("998901234567"), "missing plus")
	assert.False(t, ValidPhone("+99890123"), "too short")

	upsert.FirstName = "A"
	assert.Error(t, upsert.Validate())
}
