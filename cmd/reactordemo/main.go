// Command reactordemo wires a reactor to a Redis instance and runs it
// against the illustrative job-request entry type, for manual exercise of
// the library end to end. It is not part of the reactor's public surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redisreactor/reactor/cmd/reactordemo/internal/jobentry"
	"github.com/redisreactor/reactor/internal/broker"
	"github.com/redisreactor/reactor/internal/rconfig"
	"github.com/redisreactor/reactor/internal/reactor"
	"github.com/redisreactor/reactor/internal/reactorctx"
)

func main() {
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := rconfig.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if *dumpConfig {
		out, err := cfg.DumpYAML()
		if err != nil {
			logger.Fatal("failed to render configuration", zap.Error(err))
		}
		os.Stdout.Write(out)
		return
	}

	if cfg.Observability.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Observability.Metrics.Port)
			logger.Info("metrics server listening", zap.String("address", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	rc, err := reactorctx.New(cfg.Stream.Key, cfg.Group.Name, cfg.Consumer.ID)
	if err != nil {
		logger.Fatal("failed to initialize run context", zap.Error(err))
	}

	b := broker.New(client)
	demo := &jobentry.DemoConsumer{
		Logger:        logger,
		BlockTime:     cfg.BlockTime(),
		Batch:         cfg.Dispatch.BatchSize,
		MaxConcurrent: cfg.Dispatch.Concurrency,
	}
	r := reactor.New[*jobentry.DemoConsumer, jobentry.Request](rc, b, demo, logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		logger.Info("shutdown signal received")
		rc.ShutdownGracefully()
	}()

	mode, err := claimModeFromConfig(cfg)
	if err != nil {
		logger.Fatal("invalid claim mode configuration", zap.Error(err))
	}

	logger.Info("starting reactor",
		zap.String("stream", cfg.Stream.Key),
		zap.String("group", cfg.Group.Name),
		zap.String("consumer", rc.ConsumerID()),
		zap.String("claim_mode", cfg.Claim.Mode),
	)

	if err := r.Start(context.Background(), mode); err != nil {
		logger.Fatal("reactor exited with error", zap.Error(err))
	}
	logger.Info("reactor stopped cleanly")
}

func claimModeFromConfig(cfg *rconfig.Config) (reactor.ClaimMode, error) {
	switch cfg.Claim.Mode {
	case "all_pending":
		return reactor.ClaimAllPending(), nil
	case "clear_backlog":
		return reactor.ClearBacklog(cfg.MinIdle(), cfg.MaxIdle()), nil
	case "autoclaim":
		return reactor.Autoclaim(cfg.MinIdle()), nil
	case "new_only":
		return reactor.NewOnly(), nil
	default:
		return reactor.ClaimMode{}, fmt.Errorf("unknown claim mode %q", cfg.Claim.Mode)
	}
}
