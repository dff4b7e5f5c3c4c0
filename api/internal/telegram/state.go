package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"physics-tutor/api/internal/tutor"
)

func (r *Router) session(chatID int64) tutor.Session { return r.Sessions.Get(chatID) }
func (r *Router) save(chatID int64, s tutor.Session) { r.Sessions.Put(chatID, s) }

func (r *Router) resetChat(chatID int64) {
	r.save(chatID, tutor.Reset(r.session(chatID)))
	r.send(chatID, "🔄 Conversation reset. Ask a new physics question.")
}

func (r *Router) sendState(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, stateText(r.session(chatID)))
	msg.ParseMode = "Markdown"
	r.sendMsg(chatID, msg)
}

func stateText(s tutor.Session) string {
	var b strings.Builder
	b.WriteString("*State:* ")
	b.WriteString(esc(s.CurrentState().String()))
	if q := strings.TrimSpace(s.Question); q != "" && s.CurrentState() == tutor.AwaitingAnswer {
		b.WriteString("\n*Topic:* ")
		b.WriteString(esc(q))
	}
	if f := strings.TrimSpace(s.FollowUpQuestion); f != "" {
		b.WriteString("\n*Follow-up:* ")
		b.WriteString(esc(f))
	}
	if n := len(s.Memory); n > 0 {
		b.WriteString("\n*Messages so far:* ")
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
