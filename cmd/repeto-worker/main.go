package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/cache"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/store"
	"github.com/ternarybob/repeto/internal/worker"
)

// configPaths allows multiple -config flags, later files overriding earlier.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	workerID    = flag.String("id", "", "Worker identity (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("repeto-worker version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("repeto.toml"); err == nil {
			configFiles = append(configFiles, "repeto.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *workerID != "" {
		config.Worker.ID = *workerID
	}

	logger := common.InitLogger(config, "worker")
	common.PrintBanner("Worker")

	logger.Info().
		Str("worker_id", config.Worker.ID).
		Str("store_url", config.Store.URL).
		Str("poll_interval", config.Worker.PollInterval.String()).
		Msg("Worker configuration loaded")

	client := store.NewClient(config.Store.URL, config.Store.ServiceKey,
		store.WithLogger(logger),
		store.WithTimeout(config.Store.RequestTimeout),
		store.WithRateLimit(config.Store.RatePerSecond),
	)

	jobStore := store.NewJobStore(client, logger)
	leadStore := store.NewLeadStore(client, logger)
	countyStore := store.NewCountyStore(client, logger)

	var seenCache interfaces.SeenCache
	if config.Cache.Enabled {
		seenCache, err = cache.OpenSeenCache(config.Cache.Path, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Seen cache unavailable, continuing without it")
		} else {
			defer seenCache.Close()
			if config.Cache.Retention > 0 {
				if _, err := seenCache.Prune(config.Cache.Retention); err != nil {
					logger.Warn().Err(err).Msg("Seen cache prune failed")
				}
			}
		}
	}

	w := worker.New(jobStore, leadStore, countyStore, seenCache,
		config.Worker, config.Scraper, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
}
