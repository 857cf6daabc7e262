package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/importer"
	"github.com/ternarybob/repeto/internal/store"
	"github.com/ternarybob/repeto/internal/validation"
)

// Exit codes: 0 success, 1 pipeline error, 130 interrupted.
const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
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
	dryRun      = flag.Bool("dry-run", false, "Preview the import without writing")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion {
		fmt.Printf("repeto-import version %s\n", common.GetVersion())
		return exitOK
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("repeto.toml"); err == nil {
			configFiles = append(configFiles, "repeto.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Failed to load configuration")
		return exitError
	}
	if *dryRun {
		config.Importer.DryRun = true
	}

	logger := common.InitLogger(config, "import")
	common.PrintBanner("Import")

	client := store.NewClient(config.Store.URL, config.Store.ServiceKey,
		store.WithLogger(logger),
		store.WithTimeout(config.Store.RequestTimeout),
		store.WithRateLimit(config.Store.RatePerSecond),
	)
	leadStore := store.NewLeadStore(client, logger)

	validator := validation.New(
		validation.WithMinScore(config.Importer.MinQualityScore),
		validation.WithMinAddressLength(config.Importer.MinAddressLength),
	)

	imp := importer.New(leadStore, logger,
		importer.WithBatchSize(config.Importer.BatchSize),
		importer.WithDryRun(config.Importer.DryRun),
		importer.WithValidator(validator),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	interrupted := false
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt received, stopping after current lead")
		interrupted = true
		cancel()
	}()

	stats, err := imp.Run(ctx)
	if interrupted {
		logger.Warn().Int("processed", stats.TotalProcessed).Msg("Import interrupted")
		return exitInterrupted
	}
	if err != nil {
		logger.Error().Err(err).Msg("Import failed")
		return exitError
	}

	logger.Info().
		Int("imported", stats.Imported).
		Float64("success_rate", stats.SuccessRate()).
		Msg("Import finished")

	if stats.Errors > 0 {
		logger.Warn().Int("errors", stats.Errors).Msg("Some leads failed to import")
		return exitError
	}
	return exitOK
}
