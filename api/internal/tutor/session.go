package tutor

import (
	"fmt"
	"slices"
	"time"
)

// TurnState says which kind of input the tutor expects next.
type TurnState int

const (
	AwaitingQuestion TurnState = iota
	AwaitingAnswer
)

func (s TurnState) String() string {
	switch s {
	case AwaitingAnswer:
		return "awaiting_answer"
	default:
		return "awaiting_question"
	}
}

func (s TurnState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TurnState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "awaiting_question":
		*s = AwaitingQuestion
	case "awaiting_answer":
		*s = AwaitingAnswer
	default:
		return fmt.Errorf("unknown turn state %q", b)
	}
	return nil
}

const RoleStudent = "student"

// Message is one entry of the conversation memory.
type Message struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the whole per-conversation state. Handlers take a Session and return the
// next one; nothing else holds conversation state.
//
// Invariant: FollowUpQuestion != "" whenever Turn == AwaitingAnswer.
type Session struct {
	Turn             TurnState `json:"turn"`
	FollowUpQuestion string    `json:"follow_up_question,omitempty"`
	TeacherResponse  string    `json:"teacher_response,omitempty"`
	// Question is the student question the current follow-up belongs to.
	Question string    `json:"question,omitempty"`
	Memory   []Message `json:"memory,omitempty"`
}

func NewSession() Session {
	return Session{Turn: AwaitingQuestion}
}

func (s Session) CurrentState() TurnState { return s.Turn }

// remember returns a copy of s with text appended to the memory. The backing array is
// clipped first so sessions handed out earlier never observe the append.
func (s Session) remember(text string, now time.Time) Session {
	s.Memory = append(slices.Clip(s.Memory), Message{Role: RoleStudent, Text: text, At: now})
	return s
}

// Reset returns s in AwaitingQuestion with the follow-up and teacher response cleared.
// Memory survives a reset; it dies with the session itself.
func Reset(s Session) Session {
	s.Turn = AwaitingQuestion
	s.FollowUpQuestion = ""
	s.TeacherResponse = ""
	s.Question = ""
	return s
}
