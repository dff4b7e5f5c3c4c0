package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"physics-tutor/api/internal/tutor"
)

func init() { gin.SetMode(gin.TestMode) }

type scripted struct {
	replies []string
	calls   int
}

func (s *scripted) Name() string { return "fake" }

func (s *scripted) Complete(context.Context, string) (string, error) {
	if s.calls >= len(s.replies) {
		return "", errors.New("provider down")
	}
	s.calls++
	return s.replies[s.calls-1], nil
}

const explainReply = "1. Energy is conserved.\n3. Diagram: a pendulum at three positions\nFollow-up Question: At which point of its swing is a pendulum moving fastest, and why?"

type client struct {
	t      *testing.T
	app    *WebApp
	cookie *http.Cookie
}

func (cl *client) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	w := httptest.NewRecorder()
	cl.app.Router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookieName {
			cl.cookie = ck
		}
	}
	return w
}

func (cl *client) json(method, path, body string) (int, stateResponse) {
	w := cl.do(method, path, "application/json", body)
	var out stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		cl.t.Fatalf("%s %s: bad json %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, out
}

func newClient(t *testing.T, replies ...string) *client {
	return &client{t: t, app: NewWebApp(tutor.New(&scripted{replies: replies}, nil), nil)}
}

func TestAPIQuestionAnswerRoundTrip(t *testing.T) {
	cl := newClient(t, explainReply, "Correct: at the bottom, where potential energy is lowest.")

	code, st := cl.json(http.MethodPost, "/api/question", `{"text":"What is energy conservation?"}`)
	if code != http.StatusOK || st.State != tutor.AwaitingAnswer {
		t.Fatalf("question: code=%d state=%v", code, st.State)
	}
	if !strings.Contains(st.FollowUpQuestion, "pendulum") {
		t.Fatalf("follow-up = %q", st.FollowUpQuestion)
	}
	if cl.cookie == nil {
		t.Fatalf("no session cookie issued")
	}

	code, st = cl.json(http.MethodPost, "/api/answer", `{"text":"At the bottom"}`)
	if code != http.StatusOK || st.State != tutor.AwaitingQuestion || st.FollowUpQuestion != "" {
		t.Fatalf("answer: code=%d state=%v follow-up=%q", code, st.State, st.FollowUpQuestion)
	}
	if !strings.Contains(st.Display.Evaluation, "Correct") {
		t.Fatalf("evaluation = %q", st.Display.Evaluation)
	}
}

func TestAPIValidationAndProviderErrors(t *testing.T) {
	cl := newClient(t)

	code, st := cl.json(http.MethodPost, "/api/question", `{"text":"   "}`)
	if code != http.StatusUnprocessableEntity || st.State != tutor.AwaitingQuestion {
		t.Fatalf("blank question: code=%d state=%v", code, st.State)
	}
	code, _ = cl.json(http.MethodPost, "/api/answer", `{"text":"42"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("answer before question: code=%d", code)
	}
	code, st = cl.json(http.MethodPost, "/api/question", `{"text":"What is friction?"}`)
	if code != http.StatusBadGateway || st.State != tutor.AwaitingQuestion {
		t.Fatalf("provider failure: code=%d state=%v", code, st.State)
	}
	if w := cl.do(http.MethodPost, "/api/question", "application/json", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: code=%d", w.Code)
	}
}

func TestFormFlowAndReset(t *testing.T) {
	cl := newClient(t, explainReply)

	w := cl.do(http.MethodGet, "/", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `action="/question"`) {
		t.Fatalf("index: %d\n%s", w.Code, w.Body.String())
	}

	form := url.Values{"question": {"Why does a pendulum swing?"}}.Encode()
	w = cl.do(http.MethodPost, "/question", "application/x-www-form-urlencoded", form)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("post question: %d", w.Code)
	}
	w = cl.do(http.MethodGet, "/", "", "")
	body := w.Body.String()
	if !strings.Contains(body, "moving fastest") || !strings.Contains(body, `action="/answer"`) {
		t.Fatalf("follow-up form not shown:\n%s", body)
	}

	w = cl.do(http.MethodPost, "/reset", "application/x-www-form-urlencoded", "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("reset: %d", w.Code)
	}
	code, st := cl.json(http.MethodGet, "/api/state", "")
	if code != http.StatusOK || st.State != tutor.AwaitingQuestion || st.FollowUpQuestion != "" {
		t.Fatalf("after reset: code=%d %+v", code, st)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	app := NewWebApp(tutor.New(&scripted{replies: []string{explainReply}}, nil), nil)
	a := &client{t: t, app: app}
	b := &client{t: t, app: app}

	if code, _ := a.json(http.MethodPost, "/api/question", `{"text":"What is a pendulum?"}`); code != http.StatusOK {
		t.Fatalf("a: %d", code)
	}
	_, st := b.json(http.MethodGet, "/api/state", "")
	if st.State != tutor.AwaitingQuestion {
		t.Fatalf("b sees a's state")
	}
}

func TestHealthz(t *testing.T) {
	cl := newClient(t)
	if w := cl.do(http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	app := NewWebApp(tutor.New(&scripted{}, nil), nil, WithCORS([]string{"https://tutor.example"}))
	req := httptest.NewRequest(http.MethodOptions, "/api/question", nil)
	req.Header.Set("Origin", "https://tutor.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://tutor.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q (status %d)", got, w.Code)
	}
}

func TestEndDiscardsSessionAndMemory(t *testing.T) {
	cl := newClient(t, explainReply)

	if code, _ := cl.json(http.MethodPost, "/api/question", `{"text":"Why does a pendulum swing?"}`); code != http.StatusOK {
		t.Fatalf("question: %d", code)
	}
	_, st := cl.json(http.MethodPost, "/api/reset", "")
	if len(st.Memory) == 0 {
		t.Fatalf("reset dropped memory")
	}

	w := cl.do(http.MethodPost, "/end", "application/x-www-form-urlencoded", "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("end: %d", w.Code)
	}
	if n := cl.app.sessions.Len(); n != 0 {
		t.Fatalf("sessions after end = %d", n)
	}
	_, st = cl.json(http.MethodGet, "/api/state", "")
	if st.State != tutor.AwaitingQuestion || len(st.Memory) != 0 {
		t.Fatalf("after end: %+v", st)
	}
	if body := cl.do(http.MethodGet, "/", "", "").Body.String(); !strings.Contains(body, `action="/end"`) {
		t.Fatalf("end form missing:\n%s", body)
	}
}

func countMap(m *sync.Map) int {
	n := 0
	m.Range(func(any, any) bool { n++; return true })
	return n
}

func TestCookielessResetsCreateNoSessions(t *testing.T) {
	app := NewWebApp(tutor.New(&scripted{}, nil), nil)
	for i := 0; i < 500; i++ {
		cl := &client{t: t, app: app}
		if code, _ := cl.json(http.MethodPost, "/api/reset", ""); code != http.StatusOK {
			t.Fatalf("reset: %d", code)
		}
	}
	if n := app.sessions.Len(); n != 0 {
		t.Fatalf("sessions = %d", n)
	}
	if n := countMap(&app.locks); n != 0 {
		t.Fatalf("locks = %d", n)
	}
}

func TestSessionLimitEvictsLeastRecent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time { now = now.Add(time.Second); return now }
	app := NewWebApp(tutor.New(&scripted{}, nil), nil, WithClock(tick), WithSessionLimits(time.Hour, 20))
	var first *client
	for i := 0; i < 100; i++ {
		cl := &client{t: t, app: app}
		cl.json(http.MethodPost, "/api/question", `{"text":" "}`)
		if first == nil {
			first = cl
		}
	}
	if n := app.sessions.Len(); n != 20 {
		t.Fatalf("sessions = %d, want 20", n)
	}
	if n := countMap(&app.locks); n != 20 {
		t.Fatalf("locks = %d, want 20", n)
	}
	if _, ok := app.sessions.Lookup(first.cookie.Value); ok {
		t.Fatalf("oldest session kept")
	}
}

func TestIdleSessionsSwept(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	app := NewWebApp(tutor.New(&scripted{replies: []string{explainReply}}, nil), nil,
		WithClock(func() time.Time { return now }), WithSessionLimits(time.Hour, 0))
	cl := &client{t: t, app: app}

	cl.do(http.MethodPost, "/question", "application/x-www-form-urlencoded",
		url.Values{"question": {"Why does a pendulum swing?"}}.Encode())
	if app.sweep() != 0 || app.sessions.Len() != 1 {
		t.Fatalf("active session evicted")
	}

	now = now.Add(2 * time.Hour)
	if got := app.sweep(); got != 1 {
		t.Fatalf("evicted = %d, want 1", got)
	}
	if app.sessions.Len() != 0 || countMap(&app.last) != 0 || countMap(&app.locks) != 0 {
		t.Fatalf("idle session state left behind")
	}
}
