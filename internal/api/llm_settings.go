package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tabsift/flow-plane/internal/llm"
	"github.com/tabsift/flow-plane/internal/secrets"
	"github.com/tabsift/flow-plane/internal/store"
)

var newLLMProvider = llm.NewProvider
var encryptLLMSecret = secrets.Encrypt

type llmSettingsRequest struct {
	Mode     string `json:"mode"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

type llmSettingsResponse struct {
	Configured bool   `json:"configured"`
	Mode       string `json:"mode"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url"`
	HasAPIKey  bool   `json:"has_api_key"`
	APIKeyHint string `json:"api_key_hint,omitempty"`
}

func (s *Server) getLLMSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetLLMSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := llmSettingsResponse{
		Configured: false,
		Mode:       s.cfg.LLMMode,
		Provider:   s.cfg.LLMProvider,
		Model:      s.cfg.LLMModel,
		BaseURL:    s.cfg.LLMBaseURL,
	}
	if settings != nil {
		response.Configured = true
		response.Mode = settings.Mode
		response.Provider = settings.Provider
		response.Model = settings.Model
		response.BaseURL = settings.BaseURL
		response.HasAPIKey = settings.APIKeyEnc != ""
		if settings.APIKeyEnc != "" && s.cfg.LLMSecretsKey != "" {
			if key, err := secrets.ParseKey(s.cfg.LLMSecretsKey); err == nil {
				if apiKey, err := secrets.Decrypt(key, settings.APIKeyEnc); err == nil {
					if len(apiKey) >= 4 {
						response.APIKeyHint = apiKey[len(apiKey)-4:]
					}
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) updateLLMSettings(w http.ResponseWriter, r *http.Request) {
	var req llmSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	settings, err := s.store.GetLLMSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	mode := firstNonEmpty(req.Mode, s.cfg.LLMMode)
	provider := firstNonEmpty(req.Provider, s.cfg.LLMProvider)
	model := firstNonEmpty(req.Model, s.cfg.LLMModel)
	baseURL := firstNonEmpty(req.BaseURL, s.cfg.LLMBaseURL)
	if settings != nil {
		mode = firstNonEmpty(req.Mode, settings.Mode)
		provider = firstNonEmpty(req.Provider, settings.Provider)
		model = firstNonEmpty(req.Model, settings.Model)
		baseURL = firstNonEmpty(req.BaseURL, settings.BaseURL)
	}

	apiKeyEnc := ""
	if settings != nil {
		apiKeyEnc = settings.APIKeyEnc
	}
	if req.APIKey != "" {
		key, err := secrets.ParseKey(s.cfg.LLMSecretsKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ciphertext, err := encryptLLMSecret(key, req.APIKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		apiKeyEnc = ciphertext
	}
	if providerNeedsKey(provider) && apiKeyEnc == "" && mode != "local" {
		http.Error(w, "API key required for provider", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	if settings != nil && settings.CreatedAt != "" {
		createdAt = settings.CreatedAt
	}
	newSettings := store.LLMSettings{
		Mode:      mode,
		Provider:  provider,
		Model:     model,
		BaseURL:   baseURL,
		APIKeyEnc: apiKeyEnc,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := s.store.UpsertLLMSettings(r.Context(), newSettings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.getLLMSettings(w, r)
}

func (s *Server) testLLMSettings(w http.ResponseWriter, r *http.Request) {
	var req llmSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	providerConfig, err := s.buildLLMConfig(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	provider, err := newLLMProvider(providerConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	_, err = provider.Generate(ctx, []llm.Message{{Role: "user", Content: "ping"}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "Connected"})
}

func (s *Server) buildLLMConfig(ctx context.Context, req llmSettingsRequest) (llm.Config, error) {
	mode := firstNonEmpty(req.Mode, s.cfg.LLMMode)
	provider := firstNonEmpty(req.Provider, s.cfg.LLMProvider)
	model := firstNonEmpty(req.Model, s.cfg.LLMModel)
	baseURL := firstNonEmpty(req.BaseURL, s.cfg.LLMBaseURL)

	apiKey := req.APIKey
	if apiKey == "" {
		if settings, err := s.store.GetLLMSettings(ctx); err == nil && settings != nil {
			if providerNeedsKey(provider) && settings.APIKeyEnc != "" {
				key, err := secrets.ParseKey(s.cfg.LLMSecretsKey)
				if err != nil {
					return llm.Config{}, err
				}
				decrypted, err := secrets.Decrypt(key, settings.APIKeyEnc)
				if err != nil {
					return llm.Config{}, err
				}
				apiKey = decrypted
			}
		}
	}
	if apiKey == "" {
		apiKey = s.cfg.AnthropicAPIKey
	}
	if providerNeedsKey(provider) && apiKey == "" && mode != "local" {
		return llm.Config{}, errors.New("API key required for provider")
	}

	return llm.Config{
		Mode:            mode,
		Provider:        provider,
		Model:           model,
		BaseURL:         baseURL,
		AnthropicAPIKey: apiKey,
	}, nil
}

func providerNeedsKey(provider string) bool {
	return provider == "anthropic"
}

func firstNonEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
