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

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicBackend talks to the Anthropic /v1/messages endpoint
type anthropicBackend struct {
	http    *httputil.Client
	baseURL string
	apiKey  string
	model   string
}

func (b *anthropicBackend) name() string      { return ProviderAnthropic }
func (b *anthropicBackend) modelName() string { return b.model }

func (b *anthropicBackend) call(ctx context.Context, req contracts.CompletionRequest, temperature float64) (*contracts.CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	system := openAISystemPrompt
	if req.JSONMode {
		system += " Respond with a single JSON object."
	}

	body := anthropicRequest{
		Model:       b.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}

	url := strings.TrimRight(b.baseURL, "/") + "/v1/messages"
	resp, err := b.http.PostJSON(ctx, url, body, map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic decode: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: no text content in response")
	}

	model := parsed.Model
	if model == "" {
		model = b.model
	}
	return &contracts.CompletionResponse{
		Text:             text.String(),
		Model:            model,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}, nil
}
