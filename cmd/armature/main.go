package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/armature-build/armature/internal/app"
	"github.com/armature-build/armature/internal/approval"
	"github.com/armature-build/armature/internal/invoices"
	"github.com/armature-build/armature/internal/ledger"
	"github.com/armature-build/armature/internal/observability"
	"github.com/armature-build/armature/internal/platform/cache"
	"github.com/armature-build/armature/internal/platform/db"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/filestore"
	"github.com/armature-build/armature/internal/reconcile"
	"github.com/armature-build/armature/jobs"
	"github.com/armature-build/armature/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	docs := docstore.NewPostgres(pool)
	files := filestore.NewDisk(cfg.FileStorageDir, "/files")
	metrics := observability.NewMetrics()

	asynqClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	lookup := invoices.NewCachedLookup(redisClient, invoices.NewStoreLookup(docs), 10*time.Minute)

	queue := approval.NewQueue(docs, jobs.NewDecisionNotifier(asynqClient), logger)
	engine := reconcile.NewEngine(docs, files, logger)

	approvalHandler := approval.NewHandler(logger, queue, metrics)
	reconcileHandler := reconcile.NewHandler(logger, engine, metrics)
	invoicesHandler := invoices.NewHandler(logger, docs, lookup)
	ledgerHandler := ledger.NewHandler(logger, docs)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, redisClient, logger)
	reportHandler := report.NewHandler(report.NewClient(cfg.GotenbergURL), docs, lookup, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ApprovalHandler:  approvalHandler,
		ReconcileHandler: reconcileHandler,
		InvoicesHandler:  invoicesHandler,
		LedgerHandler:    ledgerHandler,
		JobHandler:       jobHandler,
		ReportHandler:    reportHandler,
		Metrics:          metrics,
		FileDir:          cfg.FileStorageDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
