package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/util"
)

// TextGenerator is the text-generation provider: one prompt in, one completion out.
type TextGenerator interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// DiagramGenerator turns a prompt into a hosted image URL.
type DiagramGenerator interface {
	GenerateDiagram(ctx context.Context, prompt string) (string, error)
}

// Display is everything a surface should show after one interaction.
type Display struct {
	Explanation string   `json:"explanation,omitempty"`
	DiagramURL  string   `json:"diagram_url,omitempty"`
	FollowUp    string   `json:"follow_up,omitempty"`
	Evaluation  string   `json:"evaluation,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	// Err is the first failure of the interaction, if any (validation or provider).
	Err error `json:"-"`
}

func (d *Display) warn(err error, msg string) {
	d.Warnings = append(d.Warnings, msg)
	if d.Err == nil {
		d.Err = err
	}
}

func (d *Display) fail(err error, msg string) {
	d.Errors = append(d.Errors, msg)
	if d.Err == nil {
		d.Err = err
	}
}

// Tutor runs turns against a text provider and an optional diagram provider. It holds
// no conversation state; every call takes the current Session and returns the next one.
type Tutor struct {
	text      TextGenerator
	diagrams  DiagramGenerator
	extractor FollowUpExtractor
	log       *logger.Logger
	now       func() time.Time
}

type Option func(*Tutor)

func WithExtractor(e FollowUpExtractor) Option {
	return func(t *Tutor) {
		if e != nil {
			t.extractor = e
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(t *Tutor) { t.log = logger.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tutor) {
		if now != nil {
			t.now = now
		}
	}
}

// New builds a Tutor. diagrams may be nil, in which case turns carry no image.
func New(text TextGenerator, diagrams DiagramGenerator, opts ...Option) *Tutor {
	t := &Tutor{
		text:      text,
		diagrams:  diagrams,
		extractor: NewMarkerExtractor(),
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Submit routes free text by the session's turn: a question while AwaitingQuestion,
// an answer while AwaitingAnswer.
func (t *Tutor) Submit(ctx context.Context, s Session, text string) (Session, Display) {
	if s.Turn == AwaitingAnswer {
		return t.Answer(ctx, s, text)
	}
	return t.Ask(ctx, s, text)
}

// Ask handles a student question. The session moves to AwaitingAnswer only when an
// explanation and a non-empty follow-up question were both obtained.
func (t *Tutor) Ask(ctx context.Context, s Session, question string) (Session, Display) {
	var d Display
	if s.Turn != AwaitingQuestion {
		d.warn(ErrWrongTurn, "Please answer the follow-up question first, or reset the conversation.")
		return s, d
	}
	q := strings.TrimSpace(question)
	if q == "" {
		d.warn(ErrEmptyInput, "Please enter a question.")
		return s, d
	}

	next := s.remember(q, t.now())
	log := t.log.With("engine", t.text.Name(), "turn", "question")

	reply, err := t.complete(ctx, OpExplain, ExplanationPrompt(q))
	if err != nil {
		log.Error("explanation failed", "error", err)
		d.fail(err, "Could not get an explanation: "+err.Error())
		return next, d
	}
	d.Explanation = reply

	if t.diagrams != nil {
		d.DiagramURL = t.diagram(ctx, &d, DiagramPrompt(reply, q))
	}

	follow, ok := t.extractor.Extract(reply)
	if !ok || NeedsRegeneration(follow) {
		log.Info("regenerating follow-up question", "candidate", util.Truncate(follow, 80), "found", ok)
		follow, err = t.complete(ctx, OpFollowUp, FollowUpPrompt(q))
		if err != nil {
			log.Error("follow-up generation failed", "error", err)
			d.fail(err, "Could not prepare a follow-up question: "+err.Error())
			return next, d
		}
	}

	next.Turn = AwaitingAnswer
	next.FollowUpQuestion = follow
	next.TeacherResponse = reply
	next.Question = q
	d.FollowUp = follow
	return next, d
}

// Answer evaluates the student's answer to the pending follow-up question and, on
// success, returns the session to AwaitingQuestion.
func (t *Tutor) Answer(ctx context.Context, s Session, answer string) (Session, Display) {
	var d Display
	if s.Turn != AwaitingAnswer || strings.TrimSpace(s.FollowUpQuestion) == "" {
		d.warn(ErrWrongTurn, "There is no follow-up question yet. Ask a physics question first.")
		return s, d
	}
	a := strings.TrimSpace(answer)
	if a == "" {
		d.warn(ErrEmptyInput, "Please enter an answer.")
		return s, d
	}

	next := s.remember(a, t.now())
	eval, err := t.complete(ctx, OpEvaluate, EvaluationPrompt(s.FollowUpQuestion, a))
	if err != nil {
		t.log.Error("evaluation failed", "engine", t.text.Name(), "error", err)
		d.fail(err, "Could not evaluate the answer: "+err.Error())
		return next, d
	}

	d.Evaluation = eval
	next.Turn = AwaitingQuestion
	next.FollowUpQuestion = ""
	return next, d
}

// Reset forces AwaitingQuestion regardless of the current state.
func (t *Tutor) Reset(s Session) Session {
	return Reset(s)
}

// EngineName names the text provider, with its model when it reports one.
func (t *Tutor) EngineName() string {
	if m, ok := t.text.(interface{ GetModel() string }); ok && m.GetModel() != "" {
		return t.text.Name() + " (" + m.GetModel() + ")"
	}
	return t.text.Name()
}

func (t *Tutor) complete(ctx context.Context, op, prompt string) (string, error) {
	start := t.now()
	out, err := t.text.Complete(ctx, prompt)
	t.log.Debug("text provider call", "engine", t.EngineName(), "op", op,
		"elapsed_ms", t.now().Sub(start).Milliseconds(), "error", err)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return "", err
		}
		return "", &ProviderError{Provider: t.text.Name(), Op: op, Err: err}
	}
	return util.StripCodeFences(out), nil
}

// diagram is best-effort: a failure becomes a warning and an empty URL. It does not
// set Display.Err, the turn itself still succeeds.
func (t *Tutor) diagram(ctx context.Context, d *Display, prompt string) string {
	url, err := t.diagrams.GenerateDiagram(ctx, prompt)
	if err == nil && strings.TrimSpace(url) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		pe := &ProviderError{Provider: "image", Op: OpDiagram, Err: err}
		t.log.Warn("diagram failed", "error", pe)
		d.Warnings = append(d.Warnings, fmt.Sprintf("Diagram unavailable: %v", err))
		return ""
	}
	return strings.TrimSpace(url)
}
