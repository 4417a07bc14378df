package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

const ProviderOpenAI = "openai"

// Error bodies beyond this are not useful for diagnosis.
const maxResponseBytes = 4 << 20

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenAIClient talks to any OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      httpClient,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, payload prompt.Payload, budget time.Duration) (string, error) {
	body, err := json.Marshal(c.chatPayload(payload))
	if err != nil {
		return "", malformed(ProviderOpenAI, "marshal chat payload", err)
	}

	attemptCtx, cancel := withBudget(ctx, budget)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", malformed(ProviderOpenAI, "build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", callFailure(ProviderOpenAI, ctx, attemptCtx, budget, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", callFailure(ProviderOpenAI, ctx, attemptCtx, budget, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusFailure(ProviderOpenAI, resp.StatusCode, rawRespBody, c.apiKey)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", malformed(ProviderOpenAI, "decode chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", malformed(ProviderOpenAI, "empty chat completion choices", nil)
	}
	text := parsed.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", malformed(ProviderOpenAI, "model returned empty content", nil)
	}
	return text, nil
}

func (c *OpenAIClient) chatPayload(payload prompt.Payload) map[string]any {
	out := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": payload.System},
			{"role": "user", "content": payload.User},
		},
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		out["max_tokens"] = c.maxTokens
	}
	return out
}
