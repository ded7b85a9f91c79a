package main

import (
	"context"
	"fmt"
	"os"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"correction-workflow/internal/cli"
	"correction-workflow/internal/config"
	"correction-workflow/internal/logging"
	"correction-workflow/internal/storage"
	appTemporal "correction-workflow/internal/temporal"
	"correction-workflow/internal/workflow"
)

func main() {
	if err := cli.New(openEngine).Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openEngine wires the engine the same way the API does. Notifications go
// through Temporal when it is reachable and are dropped otherwise.
func openEngine(ctx context.Context) (cli.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	mapping, err := config.LoadRoleMapping(cfg.RoleMappingFile)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}

	release := func() {
		store.Close()
		_ = logger.Sync()
	}

	var dispatcher workflow.Dispatcher = workflow.NopDispatcher{}
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Warn("temporal unavailable, notifications disabled", zap.Error(err))
	} else {
		dispatcher = appTemporal.NewDispatcher(temporalClient, cfg.TemporalTaskQueue, cfg.NotifyIDPrefix, logger)
		storeRelease := release
		release = func() {
			temporalClient.Close()
			storeRelease()
		}
	}

	engine := workflow.NewEngine(store, workflow.NewRoleResolver(mapping), dispatcher, logger, workflow.Options{
		ApproveAction: cfg.ApproveAction,
		RejectAction:  cfg.RejectAction,
		RevisionState: cfg.RevisionState,
		ClosedState:   cfg.ClosedState,

		MaxBulkDocuments: cfg.BulkMaxDocuments,
	})
	return engine, release, nil
}
