package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 35 * time.Second},
	}
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]any{
		"model":      p.model,
		"max_tokens": 4096,
		"messages":   messages,
	}
	parsed, err := p.send(ctx, payload)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", errors.New("LLM response was empty")
	}
	return result, nil
}

func (p *AnthropicProvider) GenerateStructured(ctx context.Context, messages []Message, tool Tool) (map[string]any, error) {
	payload := map[string]any{
		"model":      p.model,
		"max_tokens": 4096,
		"messages":   messages,
		"tools":      []Tool{tool},
		"tool_choice": map[string]any{
			"type": "tool",
			"name": tool.Name,
		},
	}
	parsed, err := p.send(ctx, payload)
	if err != nil {
		return nil, err
	}
	for _, block := range parsed.Content {
		if block.Type == "tool_use" && block.Name == tool.Name {
			if block.Input == nil {
				return map[string]any{}, nil
			}
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("LLM response had no %s tool call", tool.Name)
}

func (p *AnthropicProvider) send(ctx context.Context, payload map[string]any) (*anthropicResponse, error) {
	if p.apiKey == "" {
		return nil, errors.New("missing API key for remote provider")
	}
	if p.model == "" {
		return nil, errors.New("missing model for remote provider")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("LLM request failed: %s", resp.Status)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Content) == 0 {
		return nil, errors.New("LLM response had no content")
	}
	return &parsed, nil
}
