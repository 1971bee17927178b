package llm

import (
	"context"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a structured-output schema the model is forced to fill.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	// GenerateStructured forces the model to answer through the given tool
	// and returns the tool input as a decoded JSON object.
	GenerateStructured(ctx context.Context, messages []Message, tool Tool) (map[string]any, error)
}

type Config struct {
	Mode            string
	Provider        string
	Model           string
	BaseURL         string
	AnthropicAPIKey string
}

func NewProvider(cfg Config) (Provider, error) {
	if cfg.Mode == "local" {
		return LocalProvider{}, nil
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}
