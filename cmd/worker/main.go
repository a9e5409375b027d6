package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/armature-build/armature/internal/app"
	"github.com/armature-build/armature/internal/invoices"
	jobmetrics "github.com/armature-build/armature/internal/jobs"
	"github.com/armature-build/armature/internal/platform/cache"
	"github.com/armature-build/armature/internal/platform/db"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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
	lookup := invoices.NewCachedLookup(redisClient, invoices.NewStoreLookup(docs), 10*time.Minute)

	metrics := jobmetrics.NewMetrics(nil)
	decisionJob := jobs.NewDecisionJob(docs, logger).WithMetrics(metrics)
	digestJob := jobs.NewReconDigestJob(docs, redisClient, lookup, logger).WithMetrics(metrics)

	digestTask, err := jobs.NewReconDigestTask()
	if err != nil {
		logger.Error("build digest task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceDecision, Handler: decisionJob.Handle},
			{Type: jobs.TaskReconDigest, Handler: digestJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DigestCron, Task: digestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
