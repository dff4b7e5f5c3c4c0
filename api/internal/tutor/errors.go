package tutor

import (
	"errors"
	"fmt"
)

// Validation failures. They block the action and leave the session untouched.
var (
	ErrEmptyInput = errors.New("empty input")
	ErrWrongTurn  = errors.New("input does not match the current turn")
)

// ErrEmptyReply marks a provider call that succeeded but returned no text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

const (
	OpExplain  = "explain"
	OpFollowUp = "follow_up"
	OpDiagram  = "diagram"
	OpEvaluate = "evaluate"
)

// ProviderError is a failed call to the text or image provider.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrWrongTurn)
}
