package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/swapsettle/params"
	"github.com/uhyunpark/swapsettle/pkg/api"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
	"github.com/uhyunpark/swapsettle/pkg/storage"
	"github.com/uhyunpark/swapsettle/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, util.ParseLevel(cfg.Node.LogLevel))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	err = run(cfg, sugar)
	if err != nil {
		sugar.Errorw("settler_failed", "err", err)
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run blocks until shutdown. Resources it opens are closed before it returns,
// so main can exit non-zero without skipping them.
func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Storage ----
	var store settlement.Store
	switch cfg.Storage.Backend {
	case "memory":
		store = storage.NewMemoryStore()
	case "pebble":
		ps, err := storage.NewPebbleStore(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("open store %s: %w", cfg.Storage.DataDir, err)
		}
		defer ps.Close()
		store = ps
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Storage.Backend)
	}
	sugar.Infow("store_opened", "backend", cfg.Storage.Backend, "dir", cfg.Storage.DataDir)

	// ---- Coordinator ----
	clock := util.RealClock{}
	coord := settlement.NewCoordinator(store, clock, sugar, settlement.Options{
		FillRetries:     cfg.Settlement.FillRetries,
		RequireMakerSig: cfg.Settlement.RequireMakerSig,
	})

	var journal settlement.Journal = storage.NewNopJournal()
	if cfg.Storage.JournalFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.JournalFile), 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
		j, err := storage.NewFileJournal(cfg.Storage.JournalFile)
		if err != nil {
			return fmt.Errorf("open journal %s: %w", cfg.Storage.JournalFile, err)
		}
		defer j.Close()
		journal = j
		sugar.Infow("journal_enabled", "path", cfg.Storage.JournalFile)
	}
	coord.SetJournal(journal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(coord, clock, api.Config{
		Network:        cfg.Node.Network,
		ScriptVersion:  cfg.Node.ScriptVersion,
		AllowedOrigins: cfg.Node.AllowedOrigins,
	}, sugar)

	sugar.Infow("settler_starting",
		"network", cfg.Node.Network,
		"script_version", cfg.Node.ScriptVersion.String(),
		"fill_retries", cfg.Settlement.FillRetries,
		"require_maker_sig", cfg.Settlement.RequireMakerSig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start(cfg.Node.APIAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	sugar.Info("settler_stopped")
	return nil
}
