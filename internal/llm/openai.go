package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/pkg/httputil"
)

// OpenAI-compatible chat completion wire types
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

const openAISystemPrompt = "You are a Korean equity market analyst. Answer with the requested format only."

// openAIBackend talks to any OpenAI-compatible /chat/completions endpoint
type openAIBackend struct {
	http    *httputil.Client
	baseURL string
	apiKey  string
	model   string
}

func (b *openAIBackend) name() string      { return ProviderOpenAI }
func (b *openAIBackend) modelName() string { return b.model }

func (b *openAIBackend) call(ctx context.Context, req contracts.CompletionRequest, temperature float64) (*contracts.CompletionResponse, error) {
	body := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	url := strings.TrimRight(b.baseURL, "/") + "/chat/completions"
	resp, err := b.http.PostJSON(ctx, url, body, map[string]string{
		"Authorization": "Bearer " + b.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	model := parsed.Model
	if model == "" {
		model = b.model
	}
	return &contracts.CompletionResponse{
		Text:             parsed.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// statusError turns a non-200 reply into an error.
// Client errors other than 429 will not improve on retry.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	err := fmt.Errorf("API error %d: %s", status, msg)
	if status >= 400 && status < 500 && !httputil.IsRetryableError(status) {
		return httputil.Permanent(err)
	}
	return err
}
