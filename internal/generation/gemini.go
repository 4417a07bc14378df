package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/prompt"
	"google.golang.org/genai"
)

const ProviderGemini = "gemini"

type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// contentGenerator is the slice of *genai.Models the client depends on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	models      contentGenerator
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiClient(client.Models, cfg), nil
}

func newGeminiClient(models contentGenerator, cfg GeminiConfig) *GeminiClient {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		models:      models,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, payload prompt.Payload, budget time.Duration) (string, error) {
	attemptCtx, cancel := withBudget(ctx, budget)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(payload.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.temperature)),
	}
	if c.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.maxTokens)
	}

	resp, err := c.models.GenerateContent(attemptCtx, c.model, genai.Text(payload.User), genCfg)
	if err != nil {
		if status, message, ok := geminiAPIError(err); ok {
			return "", statusFailure(ProviderGemini, status, []byte(message), c.apiKey)
		}
		return "", callFailure(ProviderGemini, ctx, attemptCtx, budget, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformed(ProviderGemini, "response has no candidates", nil)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", malformed(ProviderGemini, "model returned empty content", nil)
	}
	return text, nil
}

func geminiAPIError(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}
