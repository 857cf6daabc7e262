package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/scheduler"
	"github.com/ternarybob/repeto/internal/store"
)

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
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("repeto-scheduler version %s\n", common.GetVersion())
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

	logger := common.InitLogger(config, "scheduler")
	common.PrintBanner("Scheduler")

	logger.Info().
		Str("store_url", config.Store.URL).
		Str("county_schedule", config.Scheduler.CountySchedule).
		Str("nationwide_schedule", config.Scheduler.NationwideSchedule).
		Str("reaper_schedule", config.Scheduler.ReaperSchedule).
		Msg("Scheduler configuration loaded")

	client := store.NewClient(config.Store.URL, config.Store.ServiceKey,
		store.WithLogger(logger),
		store.WithTimeout(config.Store.RequestTimeout),
		store.WithRateLimit(config.Store.RatePerSecond),
	)

	jobStore := store.NewJobStore(client, logger)
	countyStore := store.NewCountyStore(client, logger)

	sched := scheduler.New(jobStore, countyStore, config.Scheduler, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}

	logger.Info().Msg("Scheduler ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")
	sched.Stop()
}
