package main

import (
	"log/slog"
	"os"
	"time"

	"mcdry/internal/amqp"
	"mcdry/internal/backend"
	"mcdry/internal/cli"
	"mcdry/internal/config"
	"mcdry/internal/log"
	"mcdry/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)

	logger.Info("Starting mcdry-worker", "mirror", cfg.MirrorBackend)

	repo := cli.InitSQLite(cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, done := cli.GracefulShutdown(30*time.Second, nil)

	mirrorCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", "error", err)
		os.Exit(1)
	}
	mirror, err := backend.NewFactory(logger.Logger).CreateMirror(ctx, mirrorCfg)
	if err != nil {
		logger.Error("Failed to create balance mirror", "error", err)
		os.Exit(1)
	}

	client, err := amqp.ConnectWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewMirrorWorker(repo, mirror)
	if err := w.Run(ctx, client, cfg.MirrorResyncInterval); err != nil {
		slog.Error("Mirror worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
