package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

// Browse and booking-form states.
const (
	browseStateRegion   = "region"
	browseStateCategory = "category"
	browseStateSubtype  = "subtype"
	browseStateListing  = "listing"
	browseStateDetail   = "detail"

	bookStateGuestCount = "guest_count"
	bookStateExtraNames = "extra_guest_names"
	bookStatePhoneMenu  = "phone_choice"
	bookStatePhone      = "phone_manual"
	bookStateDate       = "date"
	bookStateNote       = "note"
	bookStateConfirm    = "confirm"
)

const descriptionPreviewLimit = 80

// newBrowseFlow walks region, category and optional subtype, pages
// through listing cards and runs the booking form against the picked
// listing. Only one conversation exists per chat, so starting /browse
// abandons any wizard in progress.
func newBrowseFlow(deps *Deps) *conversation.Flow {
	f := conversation.NewFlow(FlowBrowse, browseStateRegion)

	f.OnStart(func(ctx context.Context, chatID int64, _ *conversation.State) error {
		kb := regionKeyboard("uf")
		_, err := deps.Notifier.Send(ctx, chatID, "<b>Qaysi hududga bormoqchisiz?</b>", &kb)
		return err
	})

	f.Handle(browseStateRegion, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		region := lastToken(upd.Callback.Token)
		if region != store.RegionZomin {
			return conversation.Stay(), nil
		}
		st.Set("region", region)
		kb := categoryKeyboard("uf", "uf:back:region")
		deps.send(ctx, upd.ChatID, "📂 Kategoriyani tanlang:", &kb)
		return conversation.Advance(browseStateCategory), nil
	})

	f.Handle(browseStateCategory, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		if upd.Callback.Token == "uf:back:region" {
			kb := regionKeyboard("uf")
			deps.send(ctx, upd.ChatID, "<b>Qaysi hududga bormoqchisiz?</b>", &kb)
			return conversation.Advance(browseStateRegion), nil
		}
		category := store.Category(lastToken(upd.Callback.Token))
		if !category.Valid() {
			return conversation.Stay(), nil
		}
		st.Set("category", string(category))

		if category == store.CategoryHotel {
			kb := hotelSubtypeKeyboard("uf", "uf:back:category")
			deps.send(ctx, upd.ChatID, "🏨 Mehmonxona turini tanlang:", &kb)
			return conversation.Advance(browseStateSubtype), nil
		}
		st.Set("subtype", "")
		return deps.showListings(ctx, upd.ChatID, st, 0)
	})

	f.Handle(browseStateSubtype, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		if upd.Callback.Token == "uf:back:category" {
			return deps.backToCategories(ctx, upd.ChatID)
		}
		subtype := lastToken(upd.Callback.Token)
		if !store.ValidHotelSubtype(subtype) {
			return conversation.Stay(), nil
		}
		st.Set("subtype", subtype)
		return deps.showListings(ctx, upd.ChatID, st, 0)
	})

	f.Handle(browseStateListing, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		token := upd.Callback.Token
		switch {
		case token == "uf:back:category":
			return deps.backToCategories(ctx, upd.ChatID)
		case strings.HasPrefix(token, "uf:page:"):
			index, err := strconv.Atoi(lastToken(token))
			if err != nil {
				return conversation.Stay(), nil
			}
			return deps.showListings(ctx, upd.ChatID, st, index)
		case strings.HasPrefix(token, "uf:pick:"):
			return deps.showDetail(ctx, upd, st, lastToken(token))
		case strings.HasPrefix(token, "uf:loc:"):
			deps.sendListingLocation(ctx, upd, st, lastToken(token))
			return conversation.Stay(), nil
		}
		return conversation.Stay(), nil
	})

	f.Handle(browseStateDetail, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		token := upd.Callback.Token
		switch {
		case token == "uf:back:list":
			index, _ := strconv.Atoi(st.Get("index"))
			return deps.showListings(ctx, upd.ChatID, st, index)
		case strings.HasPrefix(token, "uf:loc:"):
			deps.sendListingLocation(ctx, upd, st, lastToken(token))
			return conversation.Stay(), nil
		case strings.HasPrefix(token, "uf:book:"):
			listing, ok := deps.resolveListing(ctx, st, lastToken(token))
			if !ok {
				_ = deps.Notifier.AnswerCallback(ctx, upd.Callback.ID, "Listing topilmadi")
				return conversation.Stay(), nil
			}
			st.Set("selected", listing.ID.String())
			deps.send(ctx, upd.ChatID,
				fmt.Sprintf("📝 <b>Bron qilish</b>\n\n📌 %s\n\n"+
					"👥 Necha kishi bo'lasiz? (1-%d)\n"+
					"<i>1 kishi bo'lsa, ismingiz avtomatik qo'shiladi.</i>",
					telegram.Escape(listing.Title), store.MaxGuests), nil)
			return conversation.Advance(bookStateGuestCount), nil
		}
		return conversation.Stay(), nil
	})

	f.Handle(bookStateGuestCount, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		count, err := strconv.Atoi(strings.TrimSpace(upd.Text))
		if err != nil || count < 1 || count > store.MaxGuests {
			deps.send(ctx, upd.ChatID,
				fmt.Sprintf("❌ Iltimos, 1 dan %d gacha son kiriting:", store.MaxGuests), nil)
			return conversation.Stay(), nil
		}

		user, err := deps.Store.GetUser(ctx, upd.ChatID)
		if err != nil || user.FirstName == "" {
			deps.send(ctx, upd.ChatID,
				"❌ Siz hali ro'yxatdan o'tmagansiz.\nIltimos, /start buyrug'ini bosing.", nil)
			return conversation.Clear(), nil
		}
		registered := user.FullName()
		st.Set("guest_count", strconv.Itoa(count))
		st.Set("registered_name", registered)
		st.Set("registered_phone", user.Phone)

		if count == 1 {
			setStringList(st, "guest_names", []string{registered})
			deps.send(ctx, upd.ChatID,
				"✅ Mehmon: <b>"+telegram.Escape(registered)+"</b> (avtomatik)", nil)
			return deps.askPhone(ctx, upd.ChatID, st)
		}
		deps.send(ctx, upd.ChatID, fmt.Sprintf(
			"✅ Siz (mehmon №1): <b>%s</b>\n\n"+
				"✍️ Qolgan <b>%d</b> kishining ism-familiyasini kiriting "+
				"(har birini yangi qatordan):\n\n"+
				"<i>Misol:\nAhmad Karimov\nDilshod Umarov</i>",
			telegram.Escape(registered), count-1), nil)
		return conversation.Advance(bookStateExtraNames), nil
	})

	f.Handle(bookStateExtraNames, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		needed, _ := strconv.Atoi(st.Get("guest_count"))
		needed--

		lines := []string{}
		for _, line := range strings.Split(upd.Text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) != needed {
			deps.send(ctx, upd.ChatID, fmt.Sprintf(
				"❌ Aynan %d ta ism kerak, siz %d ta yozdingiz.\n"+
					"Iltimos, har birini yangi qatordan kiriting:", needed, len(lines)), nil)
			return conversation.Stay(), nil
		}

		names := lines
		var invalid []string
		for i, name := range names {
			if n := utf8.RuneCountInString(name); n < 3 || n > 60 {
				invalid = append(invalid, fmt.Sprintf("  #%d: %q (%d belgi)", i+1, name, n))
			}
		}
		if len(invalid) > 0 {
			deps.send(ctx, upd.ChatID,
				"❌ Har bir ism 3-60 belgi orasida bo'lishi kerak:\n"+
					strings.Join(invalid, "\n")+"\n\nIltimos, qaytadan kiriting:", nil)
			return conversation.Stay(), nil
		}

		guests := append([]string{st.Get("registered_name")}, names...)
		setStringList(st, "guest_names", guests)
		deps.send(ctx, upd.ChatID, fmt.Sprintf(
			"✅ Mehmonlar (%s): <b>%s</b>",
			st.Get("guest_count"), telegram.Escape(strings.Join(guests, ", "))), nil)
		return deps.askPhone(ctx, upd.ChatID, st)
	})

	f.Handle(bookStatePhoneMenu, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		switch strings.TrimSpace(upd.Text) {
		case btnUseRegisteredPhone:
			st.Set("b_phone", st.Get("registered_phone"))
			return deps.askDate(ctx, upd.ChatID, st)
		case btnOtherPhone:
			deps.send(ctx, upd.ChatID, "📱 Telefon raqamingizni kiriting (+998901234567):", nil)
			return conversation.Advance(bookStatePhone), nil
		default:
			_, err := deps.Notifier.SendMenu(ctx, upd.ChatID,
				"❌ Iltimos, quyidagi tugmalardan birini tanlang:\n"+
					"• <b>"+btnUseRegisteredPhone+"</b> — ro'yxatdagi raqamni ishlatish\n"+
					"• <b>"+btnOtherPhone+"</b> — yangi raqam kiritish",
				phoneChoiceKeyboard())
			return conversation.Stay(), err
		}
	})

	f.Handle(bookStatePhone, conversation.KindContact, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		contact := upd.Contact
		if contact.OwnerChatID != contact.SenderChatID {
			_, err := deps.Notifier.SendMenu(ctx, upd.ChatID,
				"❌ Iltimos, o'z raqamingizni yuboring.", contactKeyboard())
			return conversation.Stay(), err
		}
		st.Set("b_phone", ContactPhone(contact.Phone))
		return deps.askDate(ctx, upd.ChatID, st)
	})

	f.Handle(bookStatePhone, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		phone, ok := NormalizePhone(upd.Text)
		if !ok {
			deps.send(ctx, upd.ChatID,
				"❌ Noto'g'ri format. Iltimos, O'zbekiston raqamini kiriting:\n"+
					"<i>Masalan: +998901234567 yoki 901234567</i>", nil)
			return conversation.Stay(), nil
		}
		st.Set("b_phone", phone)
		return deps.askDate(ctx, upd.ChatID, st)
	})

	f.Handle(bookStateDate, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		date := strings.TrimSpace(upd.Text)
		if utf8.RuneCountInString(date) < 3 {
			deps.send(ctx, upd.ChatID, "❌ Sanani kiriting (masalan: '15-fevral'):", nil)
			return conversation.Stay(), nil
		}
		st.Set("b_date", date)
		deps.send(ctx, upd.ChatID,
			"✅ Sana: <b>"+telegram.Escape(date)+"</b>\n\n📝 Qo'shimcha izoh (yoki /skip):", nil)
		return conversation.Advance(bookStateNote), nil
	})

	f.Handle(bookStateNote, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		note := strings.TrimSpace(upd.Text)
		if strings.EqualFold(note, "/skip") {
			note = ""
		}
		st.Set("b_note", note)

		listing, ok := deps.selectedListing(ctx, st)
		if !ok {
			deps.send(ctx, upd.ChatID, "❌ Xatolik yuz berdi. Qaytadan: /browse", nil)
			return conversation.Clear(), nil
		}
		kb := bookingConfirmKeyboard()
		deps.send(ctx, upd.ChatID, bookingSummary(st, listing), &kb)
		return conversation.Advance(bookStateConfirm), nil
	})

	f.Handle(bookStateConfirm, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		switch upd.Callback.Token {
		case "uf:bconfirm":
			listing, ok := deps.selectedListing(ctx, st)
			if !ok {
				deps.send(ctx, upd.ChatID, "❌ Xatolik yuz berdi. Qaytadan: /browse", nil)
				return conversation.Clear(), nil
			}
			count, _ := strconv.Atoi(st.Get("guest_count"))
			payload := store.Payload{
				Kind:       listing.Category,
				GuestCount: count,
				GuestNames: stringList(st, "guest_names"),
				Phone:      st.Get("b_phone"),
				Date:       st.Get("b_date"),
				Note:       st.Get("b_note"),
			}
			b, delivered, err := deps.Engine.Create(ctx, listing, upd.ChatID, payload)
			if err != nil {
				deps.send(ctx, upd.ChatID, "❌ Xatolik yuz berdi. Qaytadan urinib ko'ring.", nil)
				return conversation.Clear(), err
			}
			if !delivered {
				deps.send(ctx, upd.ChatID,
					"📝 <b>Bron saqlandi</b>\n\n"+
						"📌 "+telegram.Escape(listing.Title)+"\n"+
						"🆔 <code>"+b.ShortID()+"</code>\n\n"+
						"⚠️ Xizmat egasiga hozircha yetkazib bo'lmadi.\n"+
						"Adminlar xabardor qilindi, tez orada siz bilan bog'lanishadi.", nil)
				return conversation.Clear(), nil
			}
			deps.send(ctx, upd.ChatID,
				"✅ <b>Bron yuborildi!</b>\n\n"+
					"📌 "+telegram.Escape(listing.Title)+"\n"+
					"🆔 <code>"+b.ShortID()+"</code>\n\n"+
					"⏳ 5 daqiqa ichida javob keladi.\n"+
					"Agar javob kelmasa, keyinroq urinib ko'ring.", nil)
			return conversation.Clear(), nil
		case "uf:bcancel":
			deps.send(ctx, upd.ChatID, "❌ Bron bekor qilindi.\n\nQayta ko'rish: /browse", nil)
			return conversation.Clear(), nil
		default:
			return conversation.Stay(), nil
		}
	})

	return f
}

// showListings loads the filtered catalog, remembers the id list and
// renders the card at index.
func (d *Deps) showListings(ctx context.Context, chatID int64, st *conversation.State, index int) (conversation.Action, error) {
	region := st.Get("region")
	category := store.Category(st.Get("category"))
	find := &store.FindListing{Region: &region, Category: &category, ActiveOnly: true}
	if subtype := st.Get("subtype"); subtype != "" {
		find.Subtype = &subtype
	}

	listings, err := d.Store.ListListings(ctx, find)
	if err != nil {
		d.send(ctx, chatID, "❌ Xatolik yuz berdi. Keyinroq urinib ko'ring.", nil)
		return conversation.Clear(), err
	}
	if len(listings) == 0 {
		kb := categoryKeyboard("uf", "uf:back:region")
		d.send(ctx, chatID, "😔 Bu bo'limda hozircha hech narsa yo'q.\n\n📂 Boshqa kategoriyani tanlang:", &kb)
		return conversation.Advance(browseStateCategory), nil
	}

	if index < 0 || index >= len(listings) {
		index = 0
	}
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID.String()
	}
	setStringList(st, "listings", ids)
	st.Set("index", strconv.Itoa(index))

	d.sendCard(ctx, chatID, listings[index], index, len(listings))
	return conversation.Advance(browseStateListing), nil
}

func (d *Deps) sendCard(ctx context.Context, chatID int64, l *store.Listing, index, total int) {
	lines := []string{"<b>" + telegram.Escape(l.Title) + "</b>"}
	if l.PriceFrom != nil {
		lines = append(lines, fmt.Sprintf("💰 %d %s", *l.PriceFrom, currencyOrDefault(l.Currency)))
	}
	if l.Description != "" {
		lines = append(lines, "📝 "+telegram.Escape(truncate(l.Description, descriptionPreviewLimit)))
	}
	lines = append(lines, fmt.Sprintf("\n📊 %d/%d", index+1, total))
	caption := strings.Join(lines, "\n")

	kb := listingCardKeyboard(l, index, total)
	if len(l.Photos) > 0 {
		if _, err := d.Notifier.SendPhoto(ctx, chatID, l.Photos[0], caption, &kb); err == nil {
			return
		}
		caption += "\n\n⚠️ Rasm yuklanmadi."
	} else {
		caption += "\n\n📷 Rasm yo'q"
	}
	d.send(ctx, chatID, caption, &kb)
}

func (d *Deps) showDetail(ctx context.Context, upd *conversation.Update, st *conversation.State, shortID string) (conversation.Action, error) {
	listing, ok := d.resolveListing(ctx, st, shortID)
	if !ok {
		_ = d.Notifier.AnswerCallback(ctx, upd.Callback.ID, "Listing topilmadi")
		return conversation.Stay(), nil
	}
	st.Set("selected", listing.ID.String())

	lines := []string{"<b>" + telegram.Escape(listing.Title) + "</b>", ""}
	if listing.Description != "" {
		lines = append(lines, "📝 "+telegram.Escape(listing.Description), "")
	}
	if listing.PriceFrom != nil {
		lines = append(lines, fmt.Sprintf("💰 Narx: %d %s", *listing.PriceFrom, currencyOrDefault(listing.Currency)))
	}
	if listing.Phone != "" {
		lines = append(lines, "📱 Telefon: "+telegram.Escape(listing.Phone))
	}
	if listing.Address != "" {
		lines = append(lines, "📍 Manzil: "+telegram.Escape(listing.Address))
	}
	detail := strings.Join(lines, "\n")
	kb := listingDetailKeyboard(listing)

	switch {
	case len(listing.Photos) > 1:
		// Album first, detail text with buttons as a separate message.
		_ = d.Notifier.SendMediaGroup(ctx, upd.ChatID, listing.Photos, "")
		d.send(ctx, upd.ChatID, detail, &kb)
	case len(listing.Photos) == 1:
		if _, err := d.Notifier.SendPhoto(ctx, upd.ChatID, listing.Photos[0], detail, &kb); err != nil {
			d.send(ctx, upd.ChatID, detail, &kb)
		}
	default:
		d.send(ctx, upd.ChatID, detail, &kb)
	}
	return conversation.Advance(browseStateDetail), nil
}

func (d *Deps) sendListingLocation(ctx context.Context, upd *conversation.Update, st *conversation.State, shortID string) {
	listing, ok := d.resolveListing(ctx, st, shortID)
	if !ok || !listing.HasLocation() {
		_ = d.Notifier.AnswerCallback(ctx, upd.Callback.ID, "📍 Lokatsiya ma'lumoti mavjud emas.")
		return
	}
	if err := d.Notifier.SendLocation(ctx, upd.ChatID, *listing.Latitude, *listing.Longitude); err != nil {
		return
	}
	if listing.Address != "" {
		d.send(ctx, upd.ChatID, "📍 "+telegram.Escape(listing.Address), nil)
	}
}

// resolveListing finds a listing by its short id within the remembered
// result set, falling back to the current selection.
func (d *Deps) resolveListing(ctx context.Context, st *conversation.State, shortID string) (*store.Listing, bool) {
	for _, id := range stringList(st, "listings") {
		if strings.HasPrefix(id, shortID) {
			return d.listingByID(ctx, id)
		}
	}
	if selected := st.Get("selected"); strings.HasPrefix(selected, shortID) {
		return d.listingByID(ctx, selected)
	}
	return nil, false
}

func (d *Deps) selectedListing(ctx context.Context, st *conversation.State) (*store.Listing, bool) {
	return d.listingByID(ctx, st.Get("selected"))
}

func (d *Deps) listingByID(ctx context.Context, raw string) (*store.Listing, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	listing, err := d.Store.GetListing(ctx, id)
	if err != nil {
		return nil, false
	}
	return listing, true
}

func (d *Deps) askPhone(ctx context.Context, chatID int64, st *conversation.State) (conversation.Action, error) {
	if phone := st.Get("registered_phone"); phone != "" {
		_, err := d.Notifier.SendMenu(ctx, chatID,
			"📞 Telefon: <b>"+telegram.Escape(phone)+"</b> (avtomatik)\n"+
				"Shu raqamdan foydalanamizmi?", phoneChoiceKeyboard())
		return conversation.Advance(bookStatePhoneMenu), err
	}
	_, err := d.Notifier.SendMenu(ctx, chatID,
		"📱 Telefon raqamingiz topilmadi.\n"+
			"Iltimos, kontaktingizni yuboring (tugmani bosing):", contactKeyboard())
	return conversation.Advance(bookStatePhone), err
}

func (d *Deps) askDate(ctx context.Context, chatID int64, st *conversation.State) (conversation.Action, error) {
	d.send(ctx, chatID,
		"✅ Telefon: <b>"+telegram.Escape(st.Get("b_phone"))+"</b>\n\n"+
			"📅 Sanani kiriting (masalan: '15-fevral' yoki '15-20 fevral'):", nil)
	return conversation.Advance(bookStateDate), nil
}

func (d *Deps) backToCategories(ctx context.Context, chatID int64) (conversation.Action, error) {
	kb := categoryKeyboard("uf", "uf:back:region")
	d.send(ctx, chatID, "📂 Kategoriyani tanlang:", &kb)
	return conversation.Advance(browseStateCategory), nil
}

func bookingSummary(st *conversation.State, listing *store.Listing) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Bronni tasdiqlang</b>\n\n")
	sb.WriteString("📌 " + telegram.Escape(listing.Title) + "\n")
	if listing.PriceFrom != nil {
		fmt.Fprintf(&sb, "💰 %d %s\n", *listing.PriceFrom, currencyOrDefault(listing.Currency))
	}
	sb.WriteString("\n")
	guests := stringList(st, "guest_names")
	fmt.Fprintf(&sb, "👥 Mehmonlar (%s): %s\n",
		st.Get("guest_count"), telegram.Escape(strings.Join(guests, ", ")))
	fmt.Fprintf(&sb, "📱 Telefon: %s\n", telegram.Escape(st.Get("b_phone")))
	fmt.Fprintf(&sb, "📅 Sana: %s", telegram.Escape(st.Get("b_date")))
	if note := st.Get("b_note"); note != "" {
		fmt.Fprintf(&sb, "\n📝 Izoh: %s", telegram.Escape(note))
	}
	return sb.String()
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "UZS"
	}
	return c
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
