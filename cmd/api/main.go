package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"correction-workflow/internal/api"
	"correction-workflow/internal/config"
	"correction-workflow/internal/logging"
	"correction-workflow/internal/storage"
	appTemporal "correction-workflow/internal/temporal"
	"correction-workflow/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	mapping, err := config.LoadRoleMapping(cfg.RoleMappingFile)
	if err != nil {
		logger.Fatal("load role mapping", zap.Error(err))
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	dispatcher := appTemporal.NewDispatcher(temporalClient, cfg.TemporalTaskQueue, cfg.NotifyIDPrefix, logger)
	engine := workflow.NewEngine(store, workflow.NewRoleResolver(mapping), dispatcher, logger, workflow.Options{
		ApproveAction: cfg.ApproveAction,
		RejectAction:  cfg.RejectAction,
		RevisionState: cfg.RevisionState,
		ClosedState:   cfg.ClosedState,

		MaxBulkDocuments: cfg.BulkMaxDocuments,
	})

	h := api.NewHandler(engine, store, time.Duration(cfg.RequestTimeoutSec)*time.Second, logger).WithBulkLimit(cfg.BulkMaxDocuments)
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
