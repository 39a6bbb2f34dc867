// Command bidflowd runs the workflow engine and its HTTP API as a
// long-lived daemon. Storage, worker endpoints, and engine tuning come
// from a YAML file or BIDFLOW_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/agent"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/api"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/engine"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/store/memory"
	pgstore "github.com/warlockedward/AI-Bid-Assistant-sub001/store/postgres"
	redisstore "github.com/warlockedward/AI-Bid-Assistant-sub001/store/redis"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "bidflowd",
		Short:        "Workflow orchestration daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.newLogger()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cleanup()

	engineCfg := cfg.engineConfig()
	opts := []engine.Option{
		engine.WithConfig(engineCfg),
		engine.WithLogger(logger),
	}
	for agentType, endpoint := range cfg.Agents {
		opts = append(opts, engine.WithAgent(agentType, agent.NewHTTPAgent(endpoint, nil)))
	}

	eng, err := engine.Build(store, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	server := &http.Server{
		Addr:        cfg.Listen,
		Handler:     api.New(eng, api.WithLogger(logger)).Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", cfg.Listen, "store", cfg.Store.Backend, "agents", len(cfg.Agents))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		stopEngine(eng, engineCfg, logger)
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", engineCfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), engineCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http shutdown", "error", err)
	}
	stopEngine(eng, engineCfg, logger)
	return nil
}

func stopEngine(eng *engine.Engine, cfg bidflow.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		logger.Error("engine stop", "error", err)
	}
}

// openStore builds the configured storage backend. The returned cleanup
// releases resources the engine does not own, such as the redis client.
func openStore(ctx context.Context, cfg *serverConfig, logger *slog.Logger) (bidflow.Storer, func(), error) {
	switch cfg.Store.Backend {
	case "memory", "":
		return memory.New(), func() {}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), func() { _ = client.Close() }, nil
	case "postgres":
		st, err := pgstore.New(ctx, cfg.Store.Postgres.DSN, pgstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
