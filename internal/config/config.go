package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	FlowPlanePort     string
	FlowPlaneURL      string
	PostgresURL       string
	TemporalAddress   string
	TemporalTaskQueue string
	LLMMode           string
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	AnthropicAPIKey   string
	LLMSecretsKey     string
	ToolsDir          string
	MaxBatchEvents    int
}

func Load() Config {
	flowPlanePort := getEnv("FLOW_PLANE_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	return Config{
		FlowPlanePort:     flowPlanePort,
		FlowPlaneURL:      getEnv("FLOW_PLANE_URL", "http://localhost:"+flowPlanePort),
		PostgresURL:       postgresURL,
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "flow-plane-batches"),
		LLMMode:           getEnv("LLM_MODE", "remote"),
		LLMProvider:       getEnv("LLM_PROVIDER", "anthropic"),
		LLMModel:          getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		LLMSecretsKey:     getEnv("LLM_SECRETS_KEY", ""),
		ToolsDir:          getEnv("TOOLS_DIR", "tools-dump"),
		MaxBatchEvents:    getEnvInt("MAX_BATCH_EVENTS", 10000),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "flowplane")
	password := getEnv("POSTGRES_PASSWORD", "flowplane")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "flowplane")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
