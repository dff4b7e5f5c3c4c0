package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"physics-tutor/api/internal/llm"
	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/session"
	"physics-tutor/api/internal/tutor"
	"physics-tutor/api/internal/util"
)

// Sender is the part of *tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

const maxMessageLen = 3900

type Router struct {
	Bot        Sender
	Engines    *llm.Engines
	EngManager *llm.Manager
	Diagrams   tutor.DiagramGenerator // nil disables diagrams
	Sessions   *session.Store[int64]
	Log        *logger.Logger

	// Timeout bounds one interaction (up to three provider calls).
	Timeout time.Duration
}

func (r *Router) log() *logger.Logger { return logger.OrNop(r.Log) }

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	if strings.TrimSpace(upd.Message.Text) == "" {
		r.send(upd.Message.Chat.ID, "Please send your question as text.")
		return
	}
	r.handleText(upd.Message.Chat.ID, upd.Message.Text)
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "✅ OK")
	case "reset":
		r.resetChat(cid)
	case "end":
		r.Sessions.Delete(cid)
		r.send(cid, "Conversation ended. Thanks for studying physics today! Send a new question whenever you like.")
	case "state":
		r.sendState(cid)
	case "engine":
		r.handleEngineCommand(cid, upd.Message.CommandArguments())
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

const helpText = `Ask me any physics question and I'll explain it, draw a diagram and give you a follow-up question to check your understanding. Then reply with your answer and I'll evaluate it.

Commands:
/reset - start over with a new question
/end - end the conversation
/state - show what I'm waiting for
/engine [name] [model] - show or switch the text engine
/health - bot status`

func (r *Router) handleText(cid int64, text string) {
	ctx := context.Background()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	eng := r.EngManager.Get(cid)
	if eng == nil {
		r.send(cid, "No text engine is configured.")
		return
	}
	t := tutor.New(eng, r.Diagrams, tutor.WithLogger(r.log().With("chat_id", cid)))

	sess := r.session(cid)
	next, d := t.Submit(ctx, sess, text)
	r.save(cid, next)

	r.log().Info("turn handled", "chat_id", cid, "engine", eng.Name(),
		"from", sess.Turn.String(), "to", next.Turn.String(), "error", d.Err)
	r.sendDisplay(cid, d)
}

// sendDisplay shows one interaction: explanation, diagram, follow-up, evaluation, then
// warnings and errors.
func (r *Router) sendDisplay(cid int64, d tutor.Display) {
	if d.Explanation != "" {
		r.sendLong(cid, "📘 "+d.Explanation)
	}
	if d.DiagramURL != "" {
		r.sendPhoto(cid, d.DiagramURL, "Diagram")
	}
	if d.FollowUp != "" {
		msg := tgbotapi.NewMessage(cid, "❓ Follow-up question:\n\n"+d.FollowUp+"\n\nReply with your answer.")
		msg.ReplyMarkup = makeResetKeyboard()
		r.sendMsg(cid, msg)
	}
	if d.Evaluation != "" {
		r.sendLong(cid, "📝 "+d.Evaluation)
		r.send(cid, "Ask another physics question whenever you're ready.")
	}
	for _, w := range d.Warnings {
		r.send(cid, "⚠️ "+w)
	}
	for _, e := range d.Errors {
		r.send(cid, "❌ "+e)
	}
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(chatID, tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendMsg(chatID int64, msg tgbotapi.MessageConfig) {
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

// sendLong splits text into Telegram-sized messages.
func (r *Router) sendLong(chatID int64, text string) {
	for _, part := range util.SplitChunks(text, maxMessageLen) {
		r.send(chatID, part)
	}
}

func (r *Router) sendPhoto(chatID int64, url, caption string) {
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	p.Caption = caption
	if _, err := r.Bot.Send(p); err != nil {
		r.log().Warn("telegram photo failed", "chat_id", chatID, "error", err)
		r.send(chatID, fmt.Sprintf("⚠️ Could not attach the diagram, open it here: %s", url))
	}
}
