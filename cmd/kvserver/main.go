package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver"
	"github.com/pior/kvserver/metrics"
	"github.com/pior/kvserver/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	config := kvserver.DefaultConfig()

	var (
		metricsAddr string
		logLevel    string
		shards      int
	)

	flag.StringVar(&config.Addr, "addr", envOrDefault("KV_ADDR", kvserver.DefaultAddr), "TCP address to serve the key-value protocol on")
	flag.StringVar(&metricsAddr, "metrics-addr", envOrDefault("KV_METRICS_ADDR", "127.0.0.1:9100"), "HTTP address for /metrics and /health (empty disables)")
	flag.StringVar(&logLevel, "log-level", envOrDefault("KV_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.DurationVar(&config.ReceiveTimeout, "receive-timeout", kvserver.DefaultReceiveTimeout, "close connections silent for this long")
	flag.IntVar(&config.DedupWindow, "dedup-window", kvserver.DefaultDedupWindow, "sequence numbers remembered per connection")
	flag.DurationVar(&config.DedupMaxAge, "dedup-max-age", 0, "forget sequence numbers older than this (0 keeps them until evicted by size)")
	flag.IntVar(&config.MaxConnections, "max-connections", envIntOrDefault("KV_MAX_CONNECTIONS", 0), "maximum concurrent connections (0 is unlimited)")
	flag.IntVar(&shards, "shards", 32, "number of store shards")
	flag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatal("invalid log level", "level", logLevel, "err", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	config.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, metricsAddr, shards); err != nil {
		logger.Fatal("server failed", "err", err)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, config kvserver.Config, metricsAddr string, shards int) error {
	logger := config.Logger
	srv := kvserver.NewServer(store.New(shards), config)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := srv.ListenAndServe(ctx)
		if errors.Is(err, kvserver.ErrServerClosed) {
			return nil
		}
		return err
	})

	if metricsAddr != "" {
		httpServer := &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.NewRouter(metrics.NewRegistry(metrics.NewServerCollector(srv))),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("ignoring invalid integer", "env", key, "value", v)
		return def
	}
	return n
}
