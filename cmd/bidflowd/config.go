package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
)

// serverConfig is the daemon's file and environment configuration.
// Engine tuning values override the built-in defaults only when set.
type serverConfig struct {
	Listen string `mapstructure:"listen"`
	Log    struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store struct {
		Backend string `mapstructure:"backend"`
		Redis   struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
		Postgres struct {
			DSN string `mapstructure:"dsn"`
		} `mapstructure:"postgres"`
	} `mapstructure:"store"`
	// Agents maps an agent type to the HTTP endpoint of the worker
	// that executes steps of that type.
	Agents map[string]string `mapstructure:"agents"`
	Engine struct {
		TenantConcurrency   int           `mapstructure:"tenant_concurrency"`
		DispatchInterval    time.Duration `mapstructure:"dispatch_interval"`
		ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
		StuckThreshold      time.Duration `mapstructure:"stuck_threshold"`
		TimeoutThreshold    time.Duration `mapstructure:"timeout_threshold"`
		MonitorInterval     time.Duration `mapstructure:"monitor_interval"`
		CheckpointRetention int           `mapstructure:"checkpoint_retention"`
	} `mapstructure:"engine"`
}

// loadConfig reads the configuration from path when given, otherwise
// from bidflow.yaml in the working directory or /etc/bidflow. Every key
// can also be set through the environment with a BIDFLOW_ prefix, e.g.
// BIDFLOW_STORE_BACKEND=postgres.
func loadConfig(path string) (*serverConfig, error) {
	v := viper.New()
	v.SetDefault("listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetEnvPrefix("BIDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("bidflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bidflow")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *serverConfig) engineConfig() bidflow.Config {
	cfg := bidflow.DefaultConfig()
	if c.Engine.TenantConcurrency > 0 {
		cfg.TenantConcurrency = c.Engine.TenantConcurrency
	}
	if c.Engine.DispatchInterval > 0 {
		cfg.DispatchInterval = c.Engine.DispatchInterval
	}
	if c.Engine.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.Engine.ShutdownTimeout
	}
	if c.Engine.StuckThreshold > 0 {
		cfg.StuckThreshold = c.Engine.StuckThreshold
	}
	if c.Engine.TimeoutThreshold > 0 {
		cfg.TimeoutThreshold = c.Engine.TimeoutThreshold
	}
	if c.Engine.MonitorInterval > 0 {
		cfg.MonitorInterval = c.Engine.MonitorInterval
	}
	if c.Engine.CheckpointRetention > 0 {
		cfg.CheckpointRetention = c.Engine.CheckpointRetention
	}
	return cfg
}

func (c *serverConfig) newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
