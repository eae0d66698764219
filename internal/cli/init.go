// Package cli holds the start-up steps shared by cmd/mcdry, cmd/mcdry-worker
// and cmd/mcdryctl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcdry/internal/auth"
	"mcdry/internal/config"
	"mcdry/internal/log"
	"mcdry/internal/storage"

	"github.com/joho/godotenv"
)

// SetupLogger installs a text slog handler at the given LOG_LEVEL as the
// process default and returns the component-aware wrapper.
func SetupLogger(level, component string) *log.Logger {
	logger := log.New(log.NewTextConfig(os.Stdout, log.ParseLevel(level), component))
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig exits the process when validate reports a problem.
func LoadAndValidateConfig(validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the database and applies migrations, exiting on failure.
func InitSQLite(dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		slog.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// BuildAuthenticator hashes the configured logins. Plaintext passwords do
// not outlive this call.
func BuildAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	admin, err := auth.NewCredential(cfg.AdminUsername, cfg.AdminPassword, cfg.AdminPasswordHash, auth.RoleAdmin, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	viewer, err := auth.NewCredential(cfg.ViewerUsername, cfg.ViewerPassword, cfg.ViewerPasswordHash, auth.RoleViewer, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	cfg.AdminPassword, cfg.ViewerPassword = "", ""
	return auth.NewAuthenticator(admin, viewer), nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs first, bounded by timeout; done closes once it has returned.
func GracefulShutdown(timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			slog.Warn("Shutdown timeout reached")
		} else {
			slog.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
