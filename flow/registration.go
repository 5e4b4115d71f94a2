package flow

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
)

// Registration states.
const (
	regStateContact   = "contact"
	regStateFirstName = "first_name"
	regStateLastName  = "last_name"
)

// newRegistrationFlow collects phone and name on first /start. The
// contact must belong to the sender; forwarded contacts are refused.
func newRegistrationFlow(deps *Deps) *conversation.Flow {
	f := conversation.NewFlow(FlowRegistration, regStateContact)

	f.OnStart(func(ctx context.Context, chatID int64, _ *conversation.State) error {
		_, err := deps.Notifier.SendMenu(ctx, chatID,
			"👋 <b>Xush kelibsiz!</b>\n\n"+
				"Ro'yxatdan o'tish uchun telefon raqamingizni yuboring (tugmani bosing):",
			contactKeyboard())
		return err
	})

	f.Handle(regStateContact, conversation.KindContact, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		contact := upd.Contact
		if contact.OwnerChatID != contact.SenderChatID {
			_, err := deps.Notifier.SendMenu(ctx, upd.ChatID,
				"❌ Iltimos, o'z raqamingizni yuboring.", contactKeyboard())
			return conversation.Stay(), err
		}

		st.Set("phone", ContactPhone(contact.Phone))
		deps.send(ctx, upd.ChatID, "✍️ Ismingizni kiriting:", nil)
		return conversation.Advance(regStateFirstName), nil
	})

	f.Handle(regStateContact, conversation.KindText, func(ctx context.Context, upd *conversation.Update, _ *conversation.State) (conversation.Action, error) {
		_, err := deps.Notifier.SendMenu(ctx, upd.ChatID,
			"📱 Iltimos, tugma orqali kontaktingizni yuboring:", contactKeyboard())
		return conversation.Stay(), err
	})

	f.Handle(regStateFirstName, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		name := strings.TrimSpace(upd.Text)
		if !validName(name) {
			deps.send(ctx, upd.ChatID, "❌ Ism 2-60 belgi orasida bo'lishi kerak. Qaytadan kiriting:", nil)
			return conversation.Stay(), nil
		}
		st.Set("first_name", name)
		deps.send(ctx, upd.ChatID, "✍️ Familiyangizni kiriting:", nil)
		return conversation.Advance(regStateLastName), nil
	})

	f.Handle(regStateLastName, conversation.KindText, func(ctx context.Context, upd *conversation.Update, st *conversation.State) (conversation.Action, error) {
		name := strings.TrimSpace(upd.Text)
		if !validName(name) {
			deps.send(ctx, upd.ChatID, "❌ Familiya 2-60 belgi orasida bo'lishi kerak. Qaytadan kiriting:", nil)
			return conversation.Stay(), nil
		}

		user, err := deps.Store.UpsertUser(ctx, &store.UpsertUser{
			ChatID:    upd.ChatID,
			Phone:     st.Get("phone"),
			FirstName: st.Get("first_name"),
			LastName:  name,
		})
		if err != nil {
			deps.send(ctx, upd.ChatID, "❌ Xatolik yuz berdi. Qaytadan urinib ko'ring: /start", nil)
			return conversation.Clear(), err
		}

		_, err = deps.Notifier.SendMenu(ctx, upd.ChatID,
			"✅ <b>Ro'yxatdan o'tdingiz!</b>\n\n"+
				"👤 "+telegram.Escape(user.FullName())+"\n"+
				"📱 "+telegram.Escape(user.Phone)+"\n\n"+
				"Sayohatni boshlash uchun menyudan foydalaning.",
			MainMenu(deps.Profile.IsAdmin(upd.ChatID)))
		return conversation.Clear(), err
	})

	return f
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 2 && n <= 60
}
