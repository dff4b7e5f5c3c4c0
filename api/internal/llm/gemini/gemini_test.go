package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestFirstTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Text("physics.")}}},
		},
	}
	if got := firstText(resp); got != "Hello, physics." {
		t.Fatalf("firstText = %q", got)
	}
	if firstText(nil) != "" {
		t.Fatalf("nil response must give empty text")
	}
}

func TestCompleteRequiresKey(t *testing.T) {
	if _, err := New("", "gemini-2.5-flash").Complete(context.Background(), "p"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSetModel(t *testing.T) {
	e := New("k", "gemini-2.5-flash")
	e.SetModel("gemini-2.5-pro")
	if e.GetModel() != "gemini-2.5-pro" || e.Name() != "gemini" {
		t.Fatalf("unexpected engine state: %s %s", e.Name(), e.GetModel())
	}
}
