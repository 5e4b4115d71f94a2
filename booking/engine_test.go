package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/store"
)

// fakeDriver is an in-memory store.Driver with the same transition
// guards as the Postgres implementation.
type fakeDriver struct {
	mu       sync.Mutex
	users    map[int64]*store.User
	listings map[uuid.UUID]*store.Listing
	bookings map[uuid.UUID]*store.Booking
	expired  []*store.ExpiredBooking
	sweepErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		users:    make(map[int64]*store.User),
		listings: make(map[uuid.UUID]*store.Listing),
		bookings: make(map[uuid.UUID]*store.Booking),
	}
}

func (f *fakeDriver) Migrate(context.Context) error { return nil }
func (f *fakeDriver) Reset(context.Context) error   { return nil }
func (f *fakeDriver) Ping(context.Context) error    { return nil }
func (f *fakeDriver) Close() error                  { return nil }

func (f *fakeDriver) UpsertUser(_ context.Context, u *store.UpsertUser) (*store.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &store.User{ChatID: u.ChatID, Phone: u.Phone, FirstName: u.FirstName, LastName: u.LastName}
	f.users[u.ChatID] = user
	return user, nil
}

func (f *fakeDriver) GetUser(_ context.Context, chatID int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[chatID]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeDriver) CreateListing(_ context.Context, l *store.Listing) (*store.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	f.listings[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeDriver) GetListing(_ context.Context, id uuid.UUID) (*store.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.listings[id]; ok {
		return l, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeDriver) GetListingByPrefix(_ context.Context, prefix string) (*store.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.ShortID() == prefix {
			return l, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDriver) ListListings(_ context.Context, find *store.FindListing) ([]*store.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Listing, 0)
	for _, l := range f.listings {
		if find.Region != nil && l.Region != *find.Region {
			continue
		}
		if find.Category != nil && l.Category != *find.Category {
			continue
		}
		if find.OwnerChatID != nil && l.OwnerChatID != *find.OwnerChatID {
			continue
		}
		if find.ActiveOnly && !l.IsActive {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeDriver) SetListingActive(_ context.Context, id uuid.UUID, owner int64, active bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok || l.OwnerChatID != owner {
		return false, nil
	}
	l.IsActive = active
	return true, nil
}

func (f *fakeDriver) DeleteListing(_ context.Context, id uuid.UUID, owner int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok || l.OwnerChatID != owner {
		return false, nil
	}
	delete(f.listings, id)
	return true, nil
}

func (f *fakeDriver) CountListings(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.listings)), nil
}

func (f *fakeDriver) CreateBooking(_ context.Context, c *store.CreateBooking) (*store.Booking, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	expires := c.ExpiresAt
	b := &store.Booking{
		ID:          uuid.New(),
		ListingID:   c.ListingID,
		UserChatID:  c.UserChatID,
		OwnerChatID: c.OwnerChatID,
		Payload:     c.Payload,
		Status:      store.StatusPendingPartner,
		CreatedAt:   time.Now(),
		ExpiresAt:   &expires,
	}
	f.bookings[b.ID] = b
	return b, nil
}

func (f *fakeDriver) GetBooking(_ context.Context, id uuid.UUID) (*store.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeDriver) GetBookingByPrefix(_ context.Context, prefix string) (*store.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.ShortID() == prefix {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDriver) ListBookingsByUser(_ context.Context, userChatID int64, limit int) ([]*store.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Booking, 0)
	for _, b := range f.bookings {
		if b.UserChatID == userChatID && len(out) < limit {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDriver) MarkDispatched(_ context.Context, id uuid.UUID, messageID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != store.StatusPendingPartner {
		return false, nil
	}
	now := time.Now()
	b.Status = store.StatusSent
	b.DispatchedAt = &now
	if b.PartnerMessageID == nil {
		b.PartnerMessageID = &messageID
	}
	return true, nil
}

func (f *fakeDriver) Decide(_ context.Context, id uuid.UUID, owner int64, status store.BookingStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.OwnerChatID != owner {
		return false, nil
	}
	if b.Status != store.StatusPendingPartner && b.Status != store.StatusSent {
		return false, nil
	}
	b.Status = status
	return true, nil
}

func (f *fakeDriver) SweepExpired(context.Context) ([]*store.ExpiredBooking, error) {
	if f.sweepErr != nil {
		return nil, f.sweepErr
	}
	rows := f.expired
	f.expired = nil
	return rows, nil
}

func (f *fakeDriver) CountBookings(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.bookings)), nil
}

// fakeNotifier records outbound messages per chat.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  map[int64]error
	edits []sentMessage
}

type sentMessage struct {
	chatID      int64
	text        string
	hasKeyboard bool
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[chatID]; ok {
		return 0, err
	}
	f.sent = append(f.sent, sentMessage{chatID, text, kb != nil})
	return len(f.sent), nil
}

func (f *fakeNotifier) Edit(_ context.Context, chatID int64, _ int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{chatID, text, kb != nil})
	return nil
}

func (f *fakeNotifier) to(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []sentMessage{}
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

const (
	ownerChat = int64(100)
	userChat  = int64(200)
	adminChat = int64(900)
)

func newTestEngine(t *testing.T) (*Engine, *fakeDriver, *fakeNotifier, *store.Listing) {
	t.Helper()
	driver := newFakeDriver()
	st := store.New(driver, &profile.Profile{})
	notifier := &fakeNotifier{fail: map[int64]error{}}
	admins := []int64{adminChat}

	dispatcher := NewDispatcher(st, notifier, admins, nil)
	engine := NewEngine(st, dispatcher, notifier, admins, nil)

	price := int64(250000)
	lat, lon := 39.96, 68.39
	subtype := "mehmonxona"
	listing, err := driver.CreateListing(context.Background(), &store.Listing{
		Region:      "zomin",
		Category:    store.CategoryHotel,
		Subtype:     &subtype,
		Title:       "Zomin Plaza",
		Phone:       "+998901234567",
		OwnerChatID: ownerChat,
		PriceFrom:   &price,
		Latitude:    &lat,
		Longitude:   &lon,
		Photos:      []string{"ph1"},
		IsActive:    true,
	})
	require.NoError(t, err)
	return engine, driver, notifier, listing
}

func testPayload() store.Payload {
	return store.Payload{
		Kind:       store.CategoryHotel,
		GuestCount: 2,
		GuestNames: []string{"Ali Valiyev", "Vali Aliyev"},
		Phone:      "+998901112233",
		Date:       "2026-09-01",
	}
}

func TestCreateDispatchesToOwner(t *testing.T) {
	engine, driver, notifier, listing := newTestEngine(t)
	ctx := context.Background()

	b, delivered, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)
	assert.True(t, delivered)

	stored := driver.bookings[b.ID]
	assert.Equal(t, store.StatusSent, stored.Status)
	require.NotNil(t, stored.DispatchedAt)
	require.NotNil(t, stored.PartnerMessageID)

	toOwner := notifier.to(ownerChat)
	require.NotEmpty(t, toOwner)
	assert.True(t, toOwner[0].hasKeyboard)
	assert.Contains(t, toOwner[0].text, "YANGI MEHMONXONA BUYURTMASI")
	assert.Contains(t, toOwner[0].text, b.ShortID())

	// Coordinates produce a map link follow-up.
	require.Len(t, toOwner, 2)
	assert.Contains(t, toOwner[1].text, "maps.google.com")

	// Admins get a read-only monitor copy.
	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.False(t, toAdmin[0].hasKeyboard)
	assert.Contains(t, toAdmin[0].text, "Kuzatuv nusxasi")
}

func TestCreateOwnerlessBookingEscalates(t *testing.T) {
	engine, driver, notifier, _ := newTestEngine(t)
	ctx := context.Background()

	orphan, err := driver.CreateListing(ctx, &store.Listing{
		Region: "zomin", Category: store.CategoryGuide,
		Title: "Tog' gidi", Phone: "+998901234567", IsActive: true,
	})
	require.NoError(t, err)

	payload := testPayload()
	payload.Kind = store.CategoryGuide
	b, delivered, err := engine.Create(ctx, orphan, userChat, payload)
	require.NoError(t, err)
	assert.False(t, delivered)

	assert.Equal(t, store.StatusPendingPartner, driver.bookings[b.ID].Status)
	assert.Empty(t, notifier.to(0))

	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.Contains(t, toAdmin[0].text, "yetkazilmadi")
}

func TestCreateUnreachableOwnerStaysPending(t *testing.T) {
	engine, driver, notifier, listing := newTestEngine(t)
	notifier.fail[ownerChat] = assert.AnError
	ctx := context.Background()

	b, delivered, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)
	assert.False(t, delivered)

	assert.Equal(t, store.StatusPendingPartner, driver.bookings[b.ID].Status)
	assert.Nil(t, driver.bookings[b.ID].PartnerMessageID)

	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.Contains(t, toAdmin[0].text, "yetkazilmadi")
}

func TestDecideAcceptNotifiesUser(t *testing.T) {
	engine, driver, notifier, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)

	outcome, decided, err := engine.Decide(ctx, b.ShortID(), ownerChat, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, store.StatusAccepted, decided.Status)
	assert.Equal(t, store.StatusAccepted, driver.bookings[b.ID].Status)

	toUser := notifier.to(userChat)
	require.Len(t, toUser, 1)
	assert.Contains(t, toUser[0].text, "qabul qilindi")
	assert.Contains(t, toUser[0].text, "Zomin Plaza")
}

func TestDecideRejectNotifiesUser(t *testing.T) {
	engine, _, notifier, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)

	outcome, _, err := engine.Decide(ctx, b.ShortID(), ownerChat, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	toUser := notifier.to(userChat)
	require.Len(t, toUser, 1)
	assert.Contains(t, toUser[0].text, "rad etildi")
}

func TestDecideNotifiesAdmins(t *testing.T) {
	engine, _, notifier, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)

	_, _, err = engine.Decide(ctx, b.ShortID(), ownerChat, DecisionAccept)
	require.NoError(t, err)

	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 2, "monitor copy plus decision copy")
	assert.Contains(t, toAdmin[1].text, "qabul qildi")
	assert.Contains(t, toAdmin[1].text, b.ShortID())
}

func TestDecideSkipsDecisionCopyForOwnerAdmin(t *testing.T) {
	engine, driver, notifier, _ := newTestEngine(t)
	ctx := context.Background()

	owned, err := driver.CreateListing(ctx, &store.Listing{
		Region: "zomin", Category: store.CategoryGuide,
		Title: "Admin gidi", OwnerChatID: adminChat, IsActive: true,
	})
	require.NoError(t, err)

	payload := testPayload()
	payload.Kind = store.CategoryGuide
	b, delivered, err := engine.Create(ctx, owned, userChat, payload)
	require.NoError(t, err)
	require.True(t, delivered)

	_, _, err = engine.Decide(ctx, b.ShortID(), adminChat, DecisionReject)
	require.NoError(t, err)

	// Only the owner prompt; no monitor or decision copy to oneself.
	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.True(t, toAdmin[0].hasKeyboard)
}

func TestDecideWrongOwnerUnauthorized(t *testing.T) {
	engine, driver, _, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)

	outcome, _, err := engine.Decide(ctx, b.ShortID(), ownerChat+1, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, outcome)
	assert.Equal(t, store.StatusSent, driver.bookings[b.ID].Status)
}

func TestDecideSecondDecisionAlreadyFinalized(t *testing.T) {
	engine, driver, _, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)

	outcome, _, err := engine.Decide(ctx, b.ShortID(), ownerChat, DecisionAccept)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, current, err := engine.Decide(ctx, b.ShortID(), ownerChat, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, outcome)
	assert.Equal(t, store.StatusAccepted, current.Status)
	assert.Equal(t, store.StatusAccepted, driver.bookings[b.ID].Status)
}

func TestDecideUnknownPrefix(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	outcome, _, err := engine.Decide(context.Background(), "deadbeef", ownerChat, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome)
}

func TestDecideAfterTimeoutAlreadyFinalized(t *testing.T) {
	engine, driver, _, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)
	driver.bookings[b.ID].Status = store.StatusTimeout

	outcome, current, err := engine.Decide(ctx, b.ShortID(), ownerChat, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, outcome)
	assert.Equal(t, store.StatusTimeout, current.Status)
}

func TestHandleExpiredNotifiesUserAndAdmins(t *testing.T) {
	engine, _, notifier, _ := newTestEngine(t)

	engine.HandleExpired(context.Background(), []*store.ExpiredBooking{{
		ID: uuid.New(), UserChatID: userChat, OwnerChatID: ownerChat,
		ListingTitle: "Zomin Plaza", OwnerPhone: "+998901234567",
		OwnerFirstName: "Olim", OwnerLastName: "Karimov",
		WasDispatched: true,
	}})

	toUser := notifier.to(userChat)
	require.Len(t, toUser, 1)
	assert.Contains(t, toUser[0].text, "Vaqt tugadi")

	// The escalation carries the owner's name, chat id and phone.
	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.Contains(t, toAdmin[0].text, "javob bermadi")
	assert.Contains(t, toAdmin[0].text, "Olim Karimov")
	assert.Contains(t, toAdmin[0].text, "<code>100</code>")
	assert.Contains(t, toAdmin[0].text, "+998901234567")
}

func TestHandleExpiredUndispatchedEscalatesDistinctly(t *testing.T) {
	engine, _, notifier, _ := newTestEngine(t)

	engine.HandleExpired(context.Background(), []*store.ExpiredBooking{{
		ID: uuid.New(), UserChatID: userChat, OwnerChatID: ownerChat,
		ListingTitle: "Zomin Plaza", OwnerPhone: "+998901234567",
		WasDispatched: false,
	}})

	require.Len(t, notifier.to(userChat), 1)
	toAdmin := notifier.to(adminChat)
	require.Len(t, toAdmin, 1)
	assert.Contains(t, toAdmin[0].text, "yetib bormay")
	assert.Contains(t, toAdmin[0].text, "+998901234567")
	assert.Contains(t, toAdmin[0].text, "<code>100</code>")
}

func TestHandleExpiredOneBrokenRowDoesNotBlockRest(t *testing.T) {
	engine, _, notifier, _ := newTestEngine(t)
	notifier.fail[userChat] = assert.AnError

	other := int64(201)
	engine.HandleExpired(context.Background(), []*store.ExpiredBooking{
		{ID: uuid.New(), UserChatID: userChat, ListingTitle: "A", WasDispatched: true},
		{ID: uuid.New(), UserChatID: other, ListingTitle: "B", WasDispatched: true},
	})

	require.Len(t, notifier.to(other), 1)
}

func TestMarkDispatchedKeepsEarliestMessageID(t *testing.T) {
	engine, driver, _, listing := newTestEngine(t)
	ctx := context.Background()

	b, _, err := engine.Create(ctx, listing, userChat, testPayload())
	require.NoError(t, err)
	require.NotNil(t, driver.bookings[b.ID].PartnerMessageID)
	first := *driver.bookings[b.ID].PartnerMessageID

	// A restarted worker dispatching again is a no-op: the status guard
	// refuses the transition and the original message id survives.
	applied, err := driver.MarkDispatched(ctx, b.ID, first+100)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first, *driver.bookings[b.ID].PartnerMessageID)
	assert.Equal(t, store.StatusSent, driver.bookings[b.ID].Status)
}
