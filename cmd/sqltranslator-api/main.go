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

	"github.com/sqltranslator/sqltranslator/internal/api"
	"github.com/sqltranslator/sqltranslator/internal/auth"
	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/generation"
	"github.com/sqltranslator/sqltranslator/internal/history/sqlstore"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/report"
	reportduckdb "github.com/sqltranslator/sqltranslator/internal/report/duckdb"
	"github.com/sqltranslator/sqltranslator/internal/sqldb"
	s3store "github.com/sqltranslator/sqltranslator/internal/storage/s3"
	"github.com/sqltranslator/sqltranslator/internal/translate"
)

func main() {
	cfg, err := config.LoadFromEnv("sqltranslator-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	output, closer := observability.LogOutput(cfg, os.Stdout)
	defer func() { _ = closer.Close() }()
	logger := observability.NewLogger(cfg, output)

	client, err := generation.New(context.Background(), cfg.AI)
	if err != nil {
		logger.Error("failed to initialize generation backend", slog.Any("error", err))
		os.Exit(1)
	}

	opts := translate.Options{Logger: logger}
	readiness := []api.ReadinessCheck{api.CheckHistoryConfig(cfg), api.CheckObjectStoreConfig(cfg)}
	var reports api.ReportBuilder

	if cfg.History.Enabled {
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

		store := sqlstore.New(db, dialect)
		opts.Recorder = store
		readiness = append(readiness, store.HealthCheck)

		if cfg.ObjectStore.Enabled {
			objectStore, err := s3store.New(context.Background(), s3store.ConfigFrom(cfg.ObjectStore))
			if err != nil {
				logger.Error("failed to initialize object store", slog.Any("error", err))
				os.Exit(1)
			}
			readiness = append(readiness, objectStore.HealthCheck)
			reports = &report.Service{Files: store, Engine: reportduckdb.NewEngine(objectStore)}
		}
	}

	translator, err := translate.NewService(client, translate.ConfigFrom(cfg.Translate), opts)
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		Translator:        translator,
		Reports:           reports,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("provider", cfg.AI.Provider),
			slog.Bool("history", cfg.History.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
