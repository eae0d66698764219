package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"mcdry/internal/amqp"
	"mcdry/internal/auth"
	"mcdry/internal/cache"
	"mcdry/internal/cli"
	"mcdry/internal/config"
	apphttp "mcdry/internal/http"
	"mcdry/internal/log"
	"mcdry/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	repo := cli.InitSQLite(cfg.SQLiteDBPath)
	defer repo.Close()

	authn, err := cli.BuildAuthenticator(cfg)
	if err != nil {
		logger.Error("Failed to prepare logins", "error", err)
		os.Exit(1)
	}

	// Ledger events are optional; without a broker the services skip publishing.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "")
		if err != nil {
			logger.Warn("AMQP unavailable, ledger events disabled", "error", err)
		} else {
			publisher = amqpClient
			logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange)
		}
	}

	sessions := auth.NewSessionStore(cfg.SessionMax, cfg.SessionTTL)
	caches := cache.NewManager()
	caches.Register(sessions.Cache())
	caches.StartCleanup(10 * time.Minute)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Repo:               repo,
		Ledger:             services.NewLedgerService(repo, publisher),
		Leaves:             services.NewLeaveService(repo, publisher),
		Authenticator:      authn,
		Sessions:           sessions,
		Policy:             auth.DefaultPolicy(),
		Logger:             logger,
		OrganizationName:   cfg.OrganizationName,
		CookieSecure:       cfg.CookieSecure,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				slog.Error("AMQP close error", "error", err)
			}
		}
	})

	logger.Info("Starting mcdry server",
		"port", cfg.Port,
		"db_path", cfg.SQLiteDBPath,
		"organization", cfg.OrganizationName)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
