package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Esemudje/portfolio-manager-team02/internal/api"
	"github.com/Esemudje/portfolio-manager-team02/internal/backend"
	"github.com/Esemudje/portfolio-manager-team02/internal/cash"
	"github.com/Esemudje/portfolio-manager-team02/internal/config"
	"github.com/Esemudje/portfolio-manager-team02/internal/logging"
	"github.com/Esemudje/portfolio-manager-team02/internal/order"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
	"github.com/Esemudje/portfolio-manager-team02/internal/prefs"
	"github.com/Esemudje/portfolio-manager-team02/internal/store"
	"github.com/Esemudje/portfolio-manager-team02/internal/watchlist"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, closeStore, err := store.Open(ctx, store.Options{
		DatabaseURL: cfg.Storage.DatabaseURL,
		RedisURL:    cfg.Storage.RedisURL,
		SQLitePath:  cfg.Storage.SQLitePath,
		CacheTTL:    cfg.Storage.CacheTTL,
	})
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Upstream backend ---
	bc := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithUserID(cfg.Backend.UserID),
	)

	// --- Domain services ---
	wl := watchlist.Load(ctx, st, bc, logger)
	preferences := prefs.Load(ctx, st)
	gatherer := portfolio.NewGatherer(bc, cfg.Backend.Timeout, cfg.Poll.QuoteConcurrency, logger)
	controller := poller.New(gatherer, portfolio.NewAggregator(), wl, poller.Options{
		Interval: cfg.Poll.Interval,
		Enabled:  cfg.Poll.Enabled,
	}, logger)

	// --- WebSocket hub ---
	hub := api.NewWSHub(cfg.Server.CORSOrigins)
	go hub.Run(ctx)
	controller.OnUpdate(hub.PublishSnapshot)

	svc := api.NewService(api.Deps{
		Market:    bc,
		Gatherer:  gatherer,
		Orders:    order.NewService(bc, cfg.Backend.UserID, cfg.Backend.Timeout),
		Cash:      cash.NewService(bc),
		Watchlist: wl,
		Prefs:     preferences,
		Poller:    controller,
		Hub:       hub,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(svc, cfg.Server.CORSOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("portfolio-gateway listening",
			"addr", srv.Addr,
			"backend", cfg.Backend.URL,
			"poll_interval", cfg.Poll.Interval.String(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	controller.Start(ctx)

	<-ctx.Done()

	slog.Info("shutting down portfolio-gateway...")
	controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("portfolio-gateway stopped")
}
