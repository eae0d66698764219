package backend

import (
	"context"
	"fmt"
	"log/slog"

	"mcdry/internal/config"
	"mcdry/internal/sheets"
	"mcdry/internal/sheets/google"
	"mcdry/internal/sheets/memory"
)

// FromAppConfig extracts the mirror settings from the application config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := MirrorType(appConfig.MirrorBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid mirror backend in config: %s", appConfig.MirrorBackend)
	}
	return Config{
		Type:                     t,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateMirror(ctx context.Context, cfg Config) (sheets.BalanceMirror, error) {
	switch cfg.Type {
	case MemoryMirror:
		f.logger.InfoContext(ctx, "Using in-memory balance mirror")
		return memory.New(), nil
	case SheetsMirror:
		client, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, google.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create sheets mirror: %w", err)
		}
		f.logger.InfoContext(ctx, "Using Google Sheets balance mirror",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported mirror backend: %s", cfg.Type)
	}
}
