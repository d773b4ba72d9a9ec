package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agencyhub/api/internal/app"
	"agencyhub/api/internal/cache"
	"agencyhub/api/internal/config"
	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/money"
	"agencyhub/api/internal/search"
	"agencyhub/api/internal/store"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	ctx := context.Background()

	if err := money.Validate(cfg.Currency); err != nil {
		fatal("invalid currency", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		fatal("migrations failed", err)
	}

	dataStore := store.NewPostgresStore(db)

	var laneValues kanban.LaneValueCache
	var cachePinger app.Pinger
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisValues, err := cache.NewRedisLaneValues(cfg.RedisURL, cfg.LaneValueTTL)
		if err != nil {
			fatal("redis connection failed", err)
		}
		defer redisValues.Close()
		laneValues = redisValues
		cachePinger = redisValues
		slog.Info("lane value cache enabled", "ttl", cfg.LaneValueTTL.String())
	} else {
		slog.Info("lane value cache disabled, totals are computed per request")
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engine = meiliClient
	}
	searchService := search.NewService(engine, search.NewPostgres(db))
	go searchService.ReindexAll(ctx)

	manager := kanban.NewManager(kanban.NewPostgresRepository(dataStore), laneValues)
	service := app.New(cfg, dataStore, manager, searchService, cachePinger)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("agencyhub api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
