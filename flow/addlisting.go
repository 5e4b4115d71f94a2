package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

// Listing wizard states.
const (
	wizStateCategory    = "category"
	wizStateHotelType   = "hotel_type"
	wizStateTitle       = "title"
	wizStateDescription = "description"
	wizStateRegion      = "region"
	wizStatePrice       = "price"
	wizStatePhone       = "phone"
	wizStateLocation    = "location"
	wizStatePhotos      = "photos"
	wizStateConfirm     = "confirm"
)

// newAddListingFlow is the owner-side wizard behind /add. The step
// order and the optional steps depend on the category: hotels pick a
// subtype, only hotels and taxis have a price, and hotels and places
// must provide coordinates and at least one photo.
func newAddListingFlow(deps *Deps) *conversation.Flow {
	f := conversation.NewFlow(FlowAddListing, wizStateCategory)

	f.OnStart(func(ctx context.Context, chatID int64, _ *conversation.State) error {
		kb := categoryKeyboard("wiz", "")
		_, err := deps.Notifier.Send(ctx, chatID,
			"➕ <b>Yangi listing</b>\n\n📂 Kategoriyani tanlang:", &kb)
		return err
	})

	f.Handle(wizStateCategory, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		category := store.Category(lastToken(upd.Callback.Token))
		if !category.Valid() {
			return conversation.Stay(), nil
		}
		st.Set("category", string(category))

		if category == store.CategoryHotel {
			kb := hotelSubtypeKeyboard("wiz", "")
			deps.send(ctx, upd.ChatID, "🏨 Mehmonxona turini tanlang:", &kb)
			return conversation.Advance(wizStateHotelType), nil
		}
		deps.send(ctx, upd.ChatID, "🏷 <b>Nomini kiriting</b> (kamida 3 belgi):", nil)
		return conversation.Advance(wizStateTitle), nil
	})

	f.Handle(wizStateHotelType, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		subtype := lastToken(upd.Callback.Token)
		if !store.ValidHotelSubtype(subtype) {
			return conversation.Stay(), nil
		}
		st.Set("subtype", subtype)
		deps.send(ctx, upd.ChatID, "🏷 <b>Nomini kiriting</b> (kamida 3 belgi):", nil)
		return conversation.Advance(wizStateTitle), nil
	})

	f.Handle(wizStateTitle, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		title := strings.TrimSpace(upd.Text)
		if utf8.RuneCountInString(title) < 3 {
			deps.send(ctx, upd.ChatID, "❌ Nom kamida 3 belgi bo'lishi kerak. Qaytadan kiriting:", nil)
			return conversation.Stay(), nil
		}
		st.Set("title", title)
		deps.send(ctx, upd.ChatID, "📝 <b>Ta'rifni kiriting</b> (/skip o'tkazish):", nil)
		return conversation.Advance(wizStateDescription), nil
	})

	f.Handle(wizStateDescription, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		text := strings.TrimSpace(upd.Text)
		if !strings.EqualFold(text, "/skip") {
			st.Set("description", text)
		}
		kb := regionKeyboard("wiz")
		deps.send(ctx, upd.ChatID, "📍 Hududni tanlang:", &kb)
		return conversation.Advance(wizStateRegion), nil
	})

	f.Handle(wizStateRegion, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		region := lastToken(upd.Callback.Token)
		if region != store.RegionZomin {
			return conversation.Stay(), nil
		}
		st.Set("region", region)

		if store.Category(st.Get("category")).HasPrice() {
			deps.send(ctx, upd.ChatID, "✅ Hudud: <b>Zomin</b>\n\n💰 Narxni kiriting (UZS) yoki /skip:", nil)
			return conversation.Advance(wizStatePrice), nil
		}
		deps.send(ctx, upd.ChatID, "✅ Hudud: <b>Zomin</b>\n\n📱 Telefon raqamini kiriting yoki /skip:", nil)
		return conversation.Advance(wizStatePhone), nil
	})

	f.Handle(wizStatePrice, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		text := strings.TrimSpace(upd.Text)
		if !strings.EqualFold(text, "/skip") {
			price, err := strconv.Atoi(strings.ReplaceAll(text, " ", ""))
			if err != nil || price <= 0 {
				deps.send(ctx, upd.ChatID, "❌ Faqat raqam kiriting yoki /skip:", nil)
				return conversation.Stay(), nil
			}
			st.Set("price", strconv.Itoa(price))
		}
		deps.send(ctx, upd.ChatID, "📱 Telefon raqamini kiriting yoki /skip:", nil)
		return conversation.Advance(wizStatePhone), nil
	})

	f.Handle(wizStatePhone, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		text := strings.TrimSpace(upd.Text)
		if !strings.EqualFold(text, "/skip") {
			phone, ok := NormalizePhone(text)
			if !ok {
				deps.send(ctx, upd.ChatID,
					"❌ Noto'g'ri format. O'zbekiston raqamini kiriting yoki /skip:", nil)
				return conversation.Stay(), nil
			}
			st.Set("phone", phone)
		}
		deps.send(ctx, upd.ChatID, locationPrompt(st), nil)
		return conversation.Advance(wizStateLocation), nil
	})

	f.Handle(wizStateLocation, conversation.KindLocation, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		st.Set("lat", strconv.FormatFloat(upd.Location.Latitude, 'f', -1, 64))
		st.Set("lon", strconv.FormatFloat(upd.Location.Longitude, 'f', -1, 64))
		deps.send(ctx, upd.ChatID, photosPrompt(st), nil)
		return conversation.Advance(wizStatePhotos), nil
	})

	f.Handle(wizStateLocation, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		text := strings.TrimSpace(upd.Text)
		category := store.Category(st.Get("category"))
		if strings.EqualFold(text, "/skip") {
			if category.NeedsLocation() {
				deps.send(ctx, upd.ChatID,
					"❌ Bu kategoriya uchun lokatsiya majburiy. Lokatsiyani yuboring:", nil)
				return conversation.Stay(), nil
			}
			deps.send(ctx, upd.ChatID, photosPrompt(st), nil)
			return conversation.Advance(wizStatePhotos), nil
		}
		deps.send(ctx, upd.ChatID, locationPrompt(st), nil)
		return conversation.Stay(), nil
	})

	f.Handle(wizStatePhotos, conversation.KindPhoto, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		photos := stringList(st, "photos")
		if len(photos) >= store.MaxListingPhotos {
			deps.send(ctx, upd.ChatID,
				fmt.Sprintf("⚠️ Maksimum %d ta rasm. /done bilan tugating.", store.MaxListingPhotos), nil)
			return conversation.Stay(), nil
		}
		photos = append(photos, upd.PhotoID)
		setStringList(st, "photos", photos)
		deps.send(ctx, upd.ChatID,
			fmt.Sprintf("✅ Rasm %d/%d qabul qilindi. Yana yuboring yoki /done",
				len(photos), store.MaxListingPhotos), nil)
		return conversation.Stay(), nil
	})

	f.Handle(wizStatePhotos, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		text := strings.TrimSpace(upd.Text)
		category := store.Category(st.Get("category"))
		photos := stringList(st, "photos")

		switch {
		case strings.EqualFold(text, "/done"):
			if len(photos) == 0 && category.NeedsLocation() {
				deps.send(ctx, upd.ChatID, "❌ Bu kategoriya uchun kamida 1 ta rasm kerak:", nil)
				return conversation.Stay(), nil
			}
			kb := wizardConfirmKeyboard()
			deps.send(ctx, upd.ChatID, wizardSummary(st), &kb)
			return conversation.Advance(wizStateConfirm), nil
		case strings.EqualFold(text, "/skip"):
			if category.NeedsLocation() {
				deps.send(ctx, upd.ChatID, "❌ Bu kategoriya uchun kamida 1 ta rasm kerak:", nil)
				return conversation.Stay(), nil
			}
			kb := wizardConfirmKeyboard()
			deps.send(ctx, upd.ChatID, wizardSummary(st), &kb)
			return conversation.Advance(wizStateConfirm), nil
		default:
			deps.send(ctx, upd.ChatID, "📷 Rasm yuboring yoki /done, /skip buyruqlaridan foydalaning.", nil)
			return conversation.Stay(), nil
		}
	})

	f.Handle(wizStateConfirm, conversation.KindCallback, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		switch upd.Callback.Token {
		case "wiz:save":
			listing, err := buildListing(st, upd.ChatID)
			if err != nil {
				deps.send(ctx, upd.ChatID,
					"❌ Listing saqlanmadi: "+telegram.Escape(err.Error())+"\n\nQaytadan: /add", nil)
				return conversation.Clear(), nil
			}
			saved, err := deps.Store.CreateListing(ctx, listing)
			if err != nil {
				deps.send(ctx, upd.ChatID, "❌ Xatolik yuz berdi. Qaytadan urinib ko'ring: /add", nil)
				return conversation.Clear(), err
			}
			deps.send(ctx, upd.ChatID,
				"✅ <b>Listing saqlandi!</b>\n\n🏷 "+telegram.Escape(saved.Title)+
					"\n🆔 <code>"+saved.ShortID()+"</code>", nil)
			return conversation.Clear(), nil
		case "wiz:cancel":
			deps.send(ctx, upd.ChatID, "❌ Bekor qilindi.", nil)
			return conversation.Clear(), nil
		default:
			return conversation.Stay(), nil
		}
	})

	return f
}

func locationPrompt(st *conversation.State) string {
	if store.Category(st.Get("category")).NeedsLocation() {
		return "📍 Lokatsiyani yuboring (majburiy):"
	}
	return "📍 Lokatsiyani yuboring yoki /skip:"
}

func photosPrompt(st *conversation.State) string {
	if store.Category(st.Get("category")).NeedsLocation() {
		return fmt.Sprintf("📷 Rasmlarni yuboring (1-%d ta). Tugallash: /done", store.MaxListingPhotos)
	}
	return fmt.Sprintf("📷 Rasmlarni yuboring (1-%d ta). Tugallash: /done, o'tkazish: /skip", store.MaxListingPhotos)
}

func wizardSummary(st *conversation.State) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Listingni tasdiqlang</b>\n\n")
	fmt.Fprintf(&sb, "📂 %s\n", CategoryLabel(store.Category(st.Get("category"))))
	if subtype := st.Get("subtype"); subtype != "" {
		fmt.Fprintf(&sb, "🏨 %s\n", telegram.Escape(subtype))
	}
	fmt.Fprintf(&sb, "🏷 %s\n", telegram.Escape(st.Get("title")))
	if desc := st.Get("description"); desc != "" {
		fmt.Fprintf(&sb, "📝 %s\n", telegram.Escape(desc))
	}
	fmt.Fprintf(&sb, "📍 Zomin\n")
	if price := st.Get("price"); price != "" {
		fmt.Fprintf(&sb, "💰 %s UZS\n", price)
	}
	if phone := st.Get("phone"); phone != "" {
		fmt.Fprintf(&sb, "📱 %s\n", telegram.Escape(phone))
	}
	fmt.Fprintf(&sb, "📷 %d ta rasm", len(stringList(st, "photos")))
	return sb.String()
}

func buildListing(st *conversation.State, ownerChatID int64) (*store.Listing, error) {
	listing := &store.Listing{
		Region:      st.Get("region"),
		Category:    store.Category(st.Get("category")),
		Title:       st.Get("title"),
		Description: st.Get("description"),
		Phone:       st.Get("phone"),
		OwnerChatID: ownerChatID,
		Photos:      stringList(st, "photos"),
		IsActive:    true,
	}
	if subtype := st.Get("subtype"); subtype != "" {
		listing.Subtype = &subtype
	}
	if raw := st.Get("price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("narx buzilgan: %q", raw)
		}
		listing.PriceFrom = &price
		listing.Currency = "UZS"
	}
	if rawLat, rawLon := st.Get("lat"), st.Get("lon"); rawLat != "" && rawLon != "" {
		lat, err := strconv.ParseFloat(rawLat, 64)
		if err != nil {
			return nil, fmt.Errorf("lokatsiya buzilgan: %q", rawLat)
		}
		lon, err := strconv.ParseFloat(rawLon, 64)
		if err != nil {
			return nil, fmt.Errorf("lokatsiya buzilgan: %q", rawLon)
		}
		listing.Latitude, listing.Longitude = &lat, &lon
	}
	if err := listing.Validate(); err != nil {
		return nil, err
	}
	return listing, nil
}

// lastToken returns the last colon-separated segment of a callback
// token, e.g. "wiz:cat:hotel" -> "hotel".
func lastToken(token string) string {
	if i := strings.LastIndexByte(token, ':'); i >= 0 {
		return token[i+1:]
	}
	return token
}

func stringList(st *conversation.State, key string) []string {
	raw := st.Get(key)
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

func setStringList(st *conversation.State, key string, list []string) {
	raw, _ := json.Marshal(list)
	st.Set(key, string(raw))
}
