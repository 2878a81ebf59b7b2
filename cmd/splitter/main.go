package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"splitter/internal/amqp"
	"splitter/internal/backend"
	"splitter/internal/cache"
	"splitter/internal/cli"
	apphttp "splitter/internal/http"
	"splitter/internal/ledger"
	"splitter/internal/services"
	"splitter/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cli.LevelFromConfig(cfg))

	roster, err := cfg.Roster()
	if err != nil {
		logger.Error("Invalid roster", "error", err)
		os.Exit(1)
	}

	repo := ledger.NewRepository(cfg.LedgerCSVPath, roster)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.Logger)
	remoteBackend, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize remote backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	sheetReader, err := factory.CreateSheetReader(context.Background(), backendCfg)
	if err != nil {
		logger.Warn("Spreadsheet import disabled", "error", err, "spreadsheet_id", cfg.SheetsSpreadsheetID)
		sheetReader = nil
	}
	sheets := services.NewSheetSource(sheetReader, roster, cfg.SheetsSpreadsheetID, cfg.SheetsRange)
	mirror := services.NewMirror(repo, remoteBackend.Store, remoteBackend.DocumentID)

	// A failed startup pull only matters when the ledger itself is unusable.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = mirror.PullOnStartup(startupCtx)
	startupCancel()
	if err != nil {
		logger.Error("Startup pull failed", "error", err, "path", repo.Path())
		os.Exit(1)
	}

	var (
		journal    *storage.Journal
		processor  *services.SyncProcessor
		amqpClient *amqp.Client
		publisher  services.ChangePublisher
	)
	if remoteBackend.Enabled() {
		journal = cli.OpenJournal(cfg.SQLiteDBPath)
		processor = services.NewSyncProcessor(journal, mirror, cli.SyncConfig(cfg))

		if cfg.AMQPURL != "" {
			dialCtx, dialCancel := context.WithTimeout(context.Background(), time.Minute)
			amqpClient, err = amqp.NewClient(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			dialCancel()
			if err != nil {
				// Fall back to draining the journal in this process.
				logger.Warn("AMQP unavailable, syncing in-process", "error", err)
				amqpClient = nil
			} else {
				publisher = amqpClient
				logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			}
		}
	}

	svc := services.NewSplitterService(repo, roster, journal, publisher)

	caches := cache.NewManager()
	svc.RegisterCaches(caches)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Splitter:  svc,
		Mirror:    mirror,
		Processor: processor,
		Sheets:    sheets,
		Logger:    logger,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 35 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil && processor.IsRunning() {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Sync processor stop error", "error", err)
			}
		}
		mirror.PushOnShutdown(ctx)
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if remoteBackend.Cleanup != nil {
			if err := remoteBackend.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", "error", err)
			}
		}
		if journal != nil {
			if err := journal.Close(); err != nil {
				logger.Warn("Journal close error", "error", err)
			}
		}
	})

	caches.StartCleanup(ctx, time.Minute)

	// With a broker configured, splitter-worker drains the journal.
	if processor != nil && amqpClient == nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting server",
		"addr", srv.Addr,
		"ledger", repo.Path(),
		"backend", backendCfg.Type.String(),
		"document_id", mirror.DocumentID())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed to start", "error", err, "addr", srv.Addr)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
