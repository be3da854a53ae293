package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zde37/ringcache/internal/api"
	"github.com/zde37/ringcache/internal/cluster"
	"github.com/zde37/ringcache/internal/config"
	"github.com/zde37/ringcache/pkg"
)

func main() {
	vnodes := flag.Int("vnodes", 150, "Virtual nodes per server on the hash ring")
	httpPort := flag.Int("http-port", 8080, "Port for the HTTP monitoring API")
	seed := flag.String("seed", "server-1,server-2,server-3", "Comma-separated server ids to create at startup")
	statsInterval := flag.Duration("stats-interval", 2*time.Second, "Interval between websocket stats pushes")
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", "console", "Log format (json, console)")
	flag.Parse()

	cfg := &config.Config{
		VirtualNodes:  *vnodes,
		SeedServers:   config.ParseSeedServers(*seed),
		HTTPPort:      *httpPort,
		StatsInterval: *statsInterval,
		LogLevel:      *logLevel,
		LogFormat:     *logFormat,
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logConfig := pkg.DefaultLogConfig()
	logConfig.Level = cfg.LogLevel
	logConfig.Format = cfg.LogFormat

	logger, err := pkg.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info().
		Int("virtual_nodes", cfg.VirtualNodes).
		Int("http_port", cfg.HTTPPort).
		Int("seed_servers", len(cfg.SeedServers)).
		Msg("starting ringcache")

	c := cluster.New(cfg.VirtualNodes, logger)

	for _, id := range cfg.SeedServers {
		if _, err := c.AddServer(id); err != nil {
			logger.Error().Err(err).Str("server_id", id).Msg("failed to add seed server")
			os.Exit(1)
		}
	}

	httpServer, err := api.NewServer(c, cfg.StatsInterval, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create HTTP API server")
		os.Exit(1)
	}

	if err := httpServer.Start(cfg.HTTPPort); err != nil {
		logger.Error().Err(err).Msg("failed to start HTTP API server")
		os.Exit(1)
	}

	logger.Info().Msg("ringcache is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	if err := httpServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping HTTP server")
	}

	logger.Info().Msg("ringcache shutdown complete")
}
