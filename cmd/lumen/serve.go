package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumen-api/lumen/internal/cache"
	"github.com/lumen-api/lumen/internal/cli/config"
	"github.com/lumen-api/lumen/internal/server"
)

var serveConfigPath string

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the config file (default lumen.yml)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  "Start the resource API server with the configured backend and cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}

		logger, err := buildLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		registry := blogRegistry()
		sources, err := buildSources(cfg.Database, registry)
		if err != nil {
			return err
		}

		responseCache, err := buildCache(cfg.Cache)
		if err != nil {
			return err
		}

		router := server.NewRouter(server.RouterConfig{
			Registry:       registry,
			Sources:        sources,
			Logger:         logger,
			Cache:          responseCache,
			CacheTTL:       cfg.Cache.TTL,
			RequestTimeout: cfg.Server.RequestTimeout,
		})

		serverConfig := server.DefaultConfig()
		serverConfig.Addr = cfg.Server.Addr()
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
		if cfg.Server.RequestTimeout > 0 {
			serverConfig.WriteTimeout = cfg.Server.RequestTimeout + 5*time.Second
		}

		logger.Info("starting server",
			zap.String("addr", serverConfig.Addr),
			zap.String("driver", cfg.Database.Driver),
			zap.Bool("cache", cfg.Cache.Enabled))

		return server.New(serverConfig, router, logger).Run(context.Background())
	},
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	redisConfig := cache.DefaultRedisConfig()
	redisConfig.Addr = cfg.RedisAddr
	if cfg.TTL > 0 {
		redisConfig.Config.DefaultTTL = cfg.TTL
	}
	redisCache, err := cache.NewRedis(redisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return redisCache, nil
}
