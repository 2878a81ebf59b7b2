package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"splitter/internal/amqp"
	"splitter/internal/backend"
	"splitter/internal/cli"
	"splitter/internal/ledger"
	applog "splitter/internal/log"
	"splitter/internal/services"
)

// splitter-worker drains the sync journal against the remote document. It
// shares the ledger file and journal database with the splitter server and
// wakes up on ledger change messages when a broker is configured.
func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cli.LevelFromConfig(cfg)).WithComponent(applog.ComponentWorker)

	logger.Info("Starting splitter-worker")

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
	remoteBackend, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize remote backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	if !remoteBackend.Enabled() {
		logger.Error("Nothing to sync: REMOTE_BACKEND is none")
		os.Exit(1)
	}

	journal := cli.OpenJournal(cfg.SQLiteDBPath)
	mirror := services.NewMirror(repo, remoteBackend.Store, remoteBackend.DocumentID)
	processor := services.NewSyncProcessor(journal, mirror, cli.SyncConfig(cfg))

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		dialCtx, dialCancel := context.WithTimeout(context.Background(), time.Minute)
		amqpClient, err = amqp.NewClient(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		dialCancel()
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled, polling the journal only", "interval", cfg.SyncInterval)
	}

	ctx, done := cli.GracefulShutdown(30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Sync processor stop error", "error", err)
		}
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
		if err := journal.Close(); err != nil {
			logger.Warn("Journal close error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := processor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeLedgerChanges(gctx, func(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
				logger.DebugContext(ctx, "Ledger change received",
					applog.FieldOperation, msg.Operation,
					applog.FieldSerialNumber, msg.Serial)
				processor.Trigger()
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
