package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"physics-tutor/api/internal/diagram"
)

const baseURL = "https://api.openai.com/v1"

// Engine calls the OpenAI images API and returns hosted URLs.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		Model:   strings.TrimSpace(model),
		BaseURL: baseURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "openai-images" }

type imagesRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (e *Engine) Generate(ctx context.Context, in diagram.Request) (diagram.Result, error) {
	if e.APIKey == "" {
		return diagram.Result{}, fmt.Errorf("OPENAI_API_KEY is empty")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return diagram.Result{}, diagram.ErrEmptyPrompt
	}
	n := in.N
	if n <= 0 {
		n = 1
	}
	body := imagesRequest{
		Model:          e.Model,
		Prompt:         in.Prompt,
		N:              n,
		Size:           in.Size,
		Quality:        in.Quality,
		ResponseFormat: "url",
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return diagram.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return diagram.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return diagram.Result{}, fmt.Errorf("openai images %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return diagram.Result{}, fmt.Errorf("openai images: bad JSON: %w", err)
	}
	if len(out.Data) == 0 || strings.TrimSpace(out.Data[0].URL) == "" {
		return diagram.Result{}, fmt.Errorf("openai images: no image url returned")
	}
	return diagram.Result{
		URL:           strings.TrimSpace(out.Data[0].URL),
		RevisedPrompt: strings.TrimSpace(out.Data[0].RevisedPrompt),
	}, nil
}
