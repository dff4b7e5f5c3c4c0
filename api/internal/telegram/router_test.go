package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"physics-tutor/api/internal/llm"
	"physics-tutor/api/internal/session"
	"physics-tutor/api/internal/tutor"
)

type fakeSender struct {
	texts    []string
	photos   []string
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.texts = append(f.texts, m.Text)
	case tgbotapi.PhotoConfig:
		f.photos = append(f.photos, string(m.File.(tgbotapi.FileURL)))
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) all() string { return strings.Join(f.texts, "\n---\n") }

type scripted struct {
	name    string
	model   string
	replies []string
	calls   int
}

func (s *scripted) Name() string      { return s.name }
func (s *scripted) GetModel() string  { return s.model }
func (s *scripted) SetModel(m string) { s.model = m }
func (s *scripted) Complete(context.Context, string) (string, error) {
	if s.calls >= len(s.replies) {
		return "", errors.New("no more replies")
	}
	s.calls++
	return s.replies[s.calls-1], nil
}

type staticDiagrams struct {
	url string
	err error
}

func (d staticDiagrams) GenerateDiagram(context.Context, string) (string, error) { return d.url, d.err }

func newRouter(eng llm.Engine, diagrams tutor.DiagramGenerator) (*Router, *fakeSender) {
	fs := &fakeSender{}
	other := &scripted{name: "gemini", model: "gemini-2.5-flash"}
	return &Router{
		Bot:        fs,
		Engines:    llm.NewEngines(eng, other),
		EngManager: llm.NewManager(eng),
		Diagrams:   diagrams,
		Sessions:   session.NewStore[int64](),
	}, fs
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
	if strings.HasPrefix(text, "/") {
		n := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			n = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return tgbotapi.Update{Message: msg}
}

const explainReply = `1. Gravity pulls everything down equally.
2. Like two marbles rolling off a table.
3. Diagram: two balls of different mass falling side by side
4. Heavier things do not fall faster.
Follow-up Question: If you drop a bowling ball and a tennis ball from a roof, which lands first and why?`

func TestQuestionThenAnswerFlow(t *testing.T) {
	eng := &scripted{name: "groq", model: "llama", replies: []string{explainReply, "Correct! Both land together."}}
	r, fs := newRouter(eng, staticDiagrams{url: "https://img.example/d.png"})

	r.HandleUpdate(textUpdate(7, "Why do objects fall at the same rate?"))
	s := r.Sessions.Get(7)
	if s.CurrentState() != tutor.AwaitingAnswer || !strings.Contains(s.FollowUpQuestion, "bowling ball") {
		t.Fatalf("unexpected session after question: %+v", s)
	}
	if len(fs.photos) != 1 || fs.photos[0] != "https://img.example/d.png" {
		t.Fatalf("diagram not sent: %v", fs.photos)
	}
	if !strings.Contains(fs.all(), "Follow-up question") {
		t.Fatalf("follow-up not shown:\n%s", fs.all())
	}

	r.HandleUpdate(textUpdate(7, "They land at the same time"))
	s = r.Sessions.Get(7)
	if s.CurrentState() != tutor.AwaitingQuestion || s.FollowUpQuestion != "" {
		t.Fatalf("unexpected session after answer: %+v", s)
	}
	if !strings.Contains(fs.all(), "Both land together") {
		t.Fatalf("evaluation not shown:\n%s", fs.all())
	}
}

func TestDiagramFailureIsAWarning(t *testing.T) {
	eng := &scripted{name: "groq", replies: []string{explainReply}}
	r, fs := newRouter(eng, staticDiagrams{err: errors.New("quota exceeded")})

	r.HandleUpdate(textUpdate(1, "What is gravity?"))
	if r.Sessions.Get(1).CurrentState() != tutor.AwaitingAnswer {
		t.Fatalf("turn should advance despite diagram failure")
	}
	if len(fs.photos) != 0 || !strings.Contains(fs.all(), "Diagram unavailable") {
		t.Fatalf("expected a diagram warning:\n%s", fs.all())
	}
}

func TestProviderFailureKeepsState(t *testing.T) {
	eng := &scripted{name: "groq"}
	r, fs := newRouter(eng, nil)

	r.HandleUpdate(textUpdate(1, "What is inertia?"))
	if r.Sessions.Get(1).CurrentState() != tutor.AwaitingQuestion {
		t.Fatalf("state advanced after provider failure")
	}
	if !strings.Contains(fs.all(), "❌") {
		t.Fatalf("error not shown:\n%s", fs.all())
	}
}

func TestResetAndEndCommands(t *testing.T) {
	eng := &scripted{name: "groq", replies: []string{explainReply}}
	r, fs := newRouter(eng, nil)
	r.HandleUpdate(textUpdate(3, "What is momentum?"))

	r.HandleUpdate(textUpdate(3, "/reset"))
	s := r.Sessions.Get(3)
	if s.CurrentState() != tutor.AwaitingQuestion || s.FollowUpQuestion != "" {
		t.Fatalf("reset did not clear session: %+v", s)
	}
	if len(s.Memory) != 1 {
		t.Fatalf("reset should keep memory, got %d entries", len(s.Memory))
	}

	r.HandleUpdate(textUpdate(3, "/end"))
	if r.Sessions.Len() != 0 {
		t.Fatalf("/end should drop the session")
	}
	if !strings.Contains(fs.all(), "Conversation ended") {
		t.Fatalf("missing goodbye:\n%s", fs.all())
	}
}

func TestResetCallback(t *testing.T) {
	eng := &scripted{name: "groq", replies: []string{explainReply}}
	r, fs := newRouter(eng, nil)
	r.HandleUpdate(textUpdate(5, "What is torque?"))

	r.HandleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    cbReset,
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: 5}},
	}})
	if r.Sessions.Get(5).CurrentState() != tutor.AwaitingQuestion {
		t.Fatalf("callback did not reset")
	}
	if fs.requests == 0 {
		t.Fatalf("callback not acknowledged")
	}
}

func TestEngineCommand(t *testing.T) {
	eng := &scripted{name: "groq", model: "llama"}
	r, fs := newRouter(eng, nil)

	r.HandleUpdate(textUpdate(9, "/engine"))
	if !strings.Contains(fs.all(), "Current engine: groq (llama)") {
		t.Fatalf("unexpected /engine output:\n%s", fs.all())
	}

	r.HandleUpdate(textUpdate(9, "/engine gemini gemini-2.5-pro"))
	got := r.EngManager.Get(9)
	if got.Name() != "gemini" || got.GetModel() != "gemini-2.5-pro" {
		t.Fatalf("engine not switched: %s %s", got.Name(), got.GetModel())
	}
	if r.EngManager.Get(10).Name() != "groq" {
		t.Fatalf("other chats must keep the default engine")
	}

	r.HandleUpdate(textUpdate(9, "/engine claude"))
	if !strings.Contains(fs.all(), "Available: gemini | groq") {
		t.Fatalf("unexpected unknown-engine reply:\n%s", fs.all())
	}
}

func TestStateText(t *testing.T) {
	s := tutor.NewSession()
	s.Turn = tutor.AwaitingAnswer
	s.Question = "What is work?"
	s.FollowUpQuestion = "How much work is done lifting a 2 kg box by 1 m?"
	got := stateText(s)
	for _, want := range []string{"awaiting\\_answer", "What is work?", "2 kg box"} {
		if !strings.Contains(got, want) {
			t.Errorf("stateText missing %q:\n%s", want, got)
		}
	}
}
