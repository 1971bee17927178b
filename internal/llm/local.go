package llm

import (
	"context"
	"errors"
)

type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return "", errors.New("local LLM mode is not implemented")
}

func (LocalProvider) GenerateStructured(ctx context.Context, messages []Message, tool Tool) (map[string]any, error) {
	return nil, errors.New("local LLM mode is not implemented")
}
