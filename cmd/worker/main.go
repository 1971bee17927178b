package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/tabsift/flow-plane/internal/config"
	"github.com/tabsift/flow-plane/internal/llm"
	"github.com/tabsift/flow-plane/internal/pipeline"
	"github.com/tabsift/flow-plane/internal/secrets"
	"github.com/tabsift/flow-plane/internal/store/postgres"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	newStore     = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	parseSecretsKey = secrets.ParseKey
	newActivities   = func(st *postgres.PostgresStore, cfg llm.Config, secretsKey []byte, flowPlaneURL string, toolsDir string) *pipeline.BatchActivities {
		return pipeline.NewBatchActivities(st, cfg, secretsKey, flowPlaneURL, toolsDir)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	st, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	var secretsKey []byte
	if cfg.LLMSecretsKey != "" {
		parsed, err := parseSecretsKey(cfg.LLMSecretsKey)
		if err != nil {
			return err
		}
		secretsKey = parsed
	}

	activities := newActivities(st, llm.Config{
		Mode:            cfg.LLMMode,
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		BaseURL:         cfg.LLMBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	}, secretsKey, cfg.FlowPlaneURL, cfg.ToolsDir)

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(pipeline.BatchWorkflow)
	w.RegisterActivity(activities)

	log.Println("Flow plane worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
