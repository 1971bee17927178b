package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/tabsift/flow-plane/internal/api"
	"github.com/tabsift/flow-plane/internal/config"
	"github.com/tabsift/flow-plane/internal/events"
	"github.com/tabsift/flow-plane/internal/pipeline"
	"github.com/tabsift/flow-plane/internal/store/postgres"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newBroker = events.NewBroker
	newStore  = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	dialTemporal       = client.Dial
	newPipelineService = pipeline.NewService
	newServer          = func(st *postgres.PostgresStore, broker *events.Broker, svc *pipeline.Service, cfg config.Config) server {
		return api.NewServer(st, broker, svc, cfg)
	}
	notifyContext = signal.NotifyContext
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
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	st, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	temporalClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}
	pipelineService := newPipelineService(temporalClient, cfg.TemporalTaskQueue)

	server := newServer(st, broker, pipelineService, cfg)

	addr := fmt.Sprintf(":%s", cfg.FlowPlanePort)
	log.Printf("Flow plane listening on %s", addr)
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}
