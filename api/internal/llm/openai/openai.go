package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	OpenAIBaseURL   = "https://api.openai.com/v1"
	GroqBaseURL     = "https://api.groq.com/openai/v1"
	DeepseekBaseURL = "https://api.deepseek.com/v1"
)

// Engine talks to any OpenAI-compatible /chat/completions endpoint (OpenAI, Groq,
// DeepSeek). name is the id used by /engine.
type Engine struct {
	name    string
	APIKey  string
	BaseURL string

	mu    sync.RWMutex
	model string

	httpc *http.Client
}

func New(name, baseURL, key, model string) *Engine {
	return &Engine{
		name:    name,
		APIKey:  strings.TrimSpace(key),
		BaseURL: strings.TrimRight(baseURL, "/"),
		model:   strings.TrimSpace(model),
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func NewOpenAI(key, model string) *Engine   { return New("gpt", OpenAIBaseURL, key, model) }
func NewGroq(key, model string) *Engine     { return New("groq", GroqBaseURL, key, model) }
func NewDeepseek(key, model string) *Engine { return New("deepseek", DeepseekBaseURL, key, model) }

func (e *Engine) Name() string { return e.name }

func (e *Engine) GetModel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *Engine) SetModel(model string) {
	if model = strings.TrimSpace(model); model == "" {
		return
	}
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first choice.
func (e *Engine) Complete(ctx context.Context, prompt string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%s: API key is empty", e.name)
	}
	model := e.GetModel()
	if model == "" {
		return "", fmt.Errorf("%s: model is empty", e.name)
	}

	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.4,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%s chat %d: %s", e.name, resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("%s chat: bad JSON: %w", e.name, err)
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty response", e.name)
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}
