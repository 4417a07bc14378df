package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqltranslator/sqltranslator/internal/archive"
	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/history/sqlstore"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/sqldb"
	s3store "github.com/sqltranslator/sqltranslator/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqltranslator-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	output, closer := observability.LogOutput(cfg, os.Stdout)
	defer func() { _ = closer.Close() }()
	logger := observability.NewLogger(cfg, output)

	if cfg.History.DSN == "" {
		logger.Error("SQLTR_HISTORY_DSN is required")
		os.Exit(1)
	}
	db, dialect, err := sqldb.Open(context.Background(), sqldb.DBConfig{
		DSN:             cfg.History.DSN,
		MaxOpenConns:    cfg.History.MaxOpenConns,
		MaxIdleConns:    cfg.History.MaxIdleConns,
		ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.History.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open history db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	objectStore, err := s3store.New(context.Background(), s3store.ConfigFrom(cfg.ObjectStore))
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := &archive.Service{
		Store:       sqlstore.New(db, dialect),
		ObjectStore: objectStore,
		Config:      archive.ConfigFrom(cfg.Archive),
		Logger:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("archive worker started", slog.String("schedule", svc.Config.Schedule))
	if err := svc.Run(ctx); err != nil {
		logger.Error("archive worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("archive worker stopped")
}
