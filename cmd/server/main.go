package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flowtalk/flowtalk/internal/config"
	"github.com/flowtalk/flowtalk/internal/dispatch"
	"github.com/flowtalk/flowtalk/internal/infra"
	"github.com/flowtalk/flowtalk/internal/logging"
	"github.com/flowtalk/flowtalk/internal/storage"
	"github.com/flowtalk/flowtalk/migrations"
)

// maxRequestBytes bounds a single line-delimited request.
const maxRequestBytes = 1 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repo storage.Repository
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if err := migrate(cfg.DatabaseURL); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = storage.NewPostgres(db)
	case config.BackendRedis:
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		repo = storage.NewRedis(cache)
	default:
		repo = storage.NewMemory()
	}

	svc := dispatch.NewService(repo, logger)
	logger.Info("server started", "app", cfg.AppName, "env", cfg.AppEnv, "backend", cfg.StorageBackend)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- serve(ctx, svc, os.Stdin, os.Stdout)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
		select {
		case <-srvErrCh:
		case <-time.After(cfg.ShutdownPeriod):
			logger.Warn("shutdown timed out waiting for input loop")
		}
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("server exited cleanly")
}

// serve reads line-delimited JSON requests from in and writes one JSON
// response per line to out until EOF or cancellation.
func serve(ctx context.Context, svc *dispatch.Service, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := encoder.Encode(svc.Serve(ctx, line)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// migrate applies the schema through database/sql, which is what goose
// expects, before the pgx pool takes over.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return migrations.Migrate(db)
}
