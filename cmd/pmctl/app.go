package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Esemudje/portfolio-manager-team02/internal/backend"
	"github.com/Esemudje/portfolio-manager-team02/internal/config"
	"github.com/Esemudje/portfolio-manager-team02/internal/logging"
	"github.com/Esemudje/portfolio-manager-team02/internal/store"
)

var configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "Path to a YAML config file")

// app is what every subcommand needs: configuration, the backend client and
// the client-state store.
type app struct {
	cfg    *config.Config
	client *backend.Client
	store  store.Store
	logger *slog.Logger
	close  func()
}

// openApp loads configuration and opens the store. Logs go to stderr so
// they never mix with command output.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWriter(os.Stderr, cfg.Logging.Level, "text")
	slog.SetDefault(logger)

	st, closeStore, err := store.Open(ctx, store.Options{
		DatabaseURL: cfg.Storage.DatabaseURL,
		RedisURL:    cfg.Storage.RedisURL,
		SQLitePath:  cfg.Storage.SQLitePath,
		CacheTTL:    cfg.Storage.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithUserID(cfg.Backend.UserID),
	)
	return &app{
		cfg:    cfg,
		client: client,
		store:  st,
		logger: logger,
		close:  closeStore,
	}, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
