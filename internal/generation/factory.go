package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

// New builds the backend selected by cfg.Provider, wrapped with attempt metrics.
func New(ctx context.Context, cfg config.AIConfig) (Client, error) {
	switch cfg.Provider {
	case "", config.ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		return Instrument(ProviderOpenAI, client), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini backend: %w", err)
		}
		return Instrument(ProviderGemini, client), nil
	case config.ProviderLambda:
		client, err := NewLambdaClient(ctx, LambdaConfig{
			FunctionName: cfg.LambdaFunction,
			Region:       cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("lambda backend: %w", err)
		}
		return Instrument(ProviderLambda, client), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}

// Instrument counts every call to next by provider and result.
func Instrument(provider string, next Client) Client {
	return instrumented{provider: provider, next: next}
}

type instrumented struct {
	provider string
	next     Client
}

func (c instrumented) Generate(ctx context.Context, payload prompt.Payload, budget time.Duration) (string, error) {
	text, err := c.next.Generate(ctx, payload, budget)
	result := "ok"
	if err != nil {
		result = "error"
		var genErr *Error
		if errors.As(err, &genErr) {
			result = string(genErr.Kind)
		}
	}
	observability.ObserveGenerationAttempt(c.provider, result)
	return text, err
}
