package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration shared by all repeto
// processes (worker, scheduler, importer, seed). It is constructed once in
// main and passed explicitly to every component.
type Config struct {
	Store     StoreConfig     `toml:"store" validate:"required"`
	Worker    WorkerConfig    `toml:"worker"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Importer  ImporterConfig  `toml:"importer"`
	Scraper   ScraperConfig   `toml:"scraper"`
	Cache     CacheConfig     `toml:"cache"`
	Logging   LoggingConfig   `toml:"logging"`
}

// StoreConfig configures the REST record store client.
type StoreConfig struct {
	URL            string        `toml:"url" validate:"required,url"`
	ServiceKey     string        `toml:"service_key" validate:"required"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RatePerSecond  int           `toml:"rate_per_second" validate:"gte=1"`
}

// WorkerConfig configures the job worker poll loop.
type WorkerConfig struct {
	ID            string        `toml:"id"`             // Worker identity stamped on claimed jobs
	PollInterval  time.Duration `toml:"poll_interval"`  // Sleep between empty polls
	ErrorBackoff  time.Duration `toml:"error_backoff"`  // Sleep after a loop-level error
	JobTimeout    time.Duration `toml:"job_timeout"`    // Per-job execution deadline
	MaxAttempts   int           `toml:"max_attempts" validate:"gte=1"`
	DefaultSource string        `toml:"default_source"` // Scraper used when a job names none
}

// SchedulerConfig configures the periodic scheduling sweeps.
type SchedulerConfig struct {
	CountySchedule     string        `toml:"county_schedule"`      // Cron spec for the due-county sweep
	NationwideSchedule string        `toml:"nationwide_schedule"`  // Cron spec for the nationwide source sweep
	ReaperSchedule     string        `toml:"reaper_schedule"`      // Cron spec for the stale-job reaper
	CountyBatch        int           `toml:"county_batch" validate:"gte=1"`
	StatesPerSource    int           `toml:"states_per_source" validate:"gte=1"`
	StaleAfter         time.Duration `toml:"stale_after"`
	SourceCooldown     time.Duration `toml:"source_cooldown"` // Skip sources scheduled within this window
}

// ImporterConfig configures the staging-to-production import pipeline.
type ImporterConfig struct {
	BatchSize        int  `toml:"batch_size" validate:"gte=1"`
	MinQualityScore  int  `toml:"min_quality_score" validate:"gte=0,lte=100"`
	MinAddressLength int  `toml:"min_address_length" validate:"gte=1"`
	DryRun           bool `toml:"dry_run"`
}

// ScraperConfig contains shared scraper adapter settings.
type ScraperConfig struct {
	UserAgent       string        `toml:"user_agent"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	DelayMin        time.Duration `toml:"delay_min"` // Randomized inter-request delay window
	DelayMax        time.Duration `toml:"delay_max"`
	MaxPages        int           `toml:"max_pages" validate:"gte=1"`
	EnableBrowser   bool          `toml:"enable_browser"` // Render JS-heavy listing pages with chromedp
	BrowserWaitTime time.Duration `toml:"browser_wait_time"`
}

// CacheConfig configures the local seen-lead cache.
type CacheConfig struct {
	Enabled   bool          `toml:"enabled"`
	Path      string        `toml:"path"`
	Retention time.Duration `toml:"retention"` // Entries unseen this long are pruned on startup
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			URL:            "http://localhost:3000",
			RequestTimeout: 30 * time.Second,
			RatePerSecond:  5,
		},
		Worker: WorkerConfig{
			ID:            fmt.Sprintf("worker-%d", os.Getpid()),
			PollInterval:  10 * time.Second,
			ErrorBackoff:  30 * time.Second,
			JobTimeout:    20 * time.Minute,
			MaxAttempts:   3,
			DefaultSource: "auction_nationwide",
		},
		Scheduler: SchedulerConfig{
			CountySchedule:     "*/5 * * * *",
			NationwideSchedule: "*/5 * * * *",
			ReaperSchedule:     "*/5 * * * *",
			CountyBatch:        100,
			StatesPerSource:    10,
			StaleAfter:         15 * time.Minute,
			SourceCooldown:     24 * time.Hour,
		},
		Importer: ImporterConfig{
			BatchSize:        100,
			MinQualityScore:  30,
			MinAddressLength: 5,
		},
		Scraper: ScraperConfig{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:  30 * time.Second,
			DelayMin:        1 * time.Second,
			DelayMax:        3 * time.Second,
			MaxPages:        20,
			EnableBrowser:   false,
			BrowserWaitTime: 3 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Path:      "./data/seen",
			Retention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from TOML files with priority:
// defaults -> file1 -> file2 -> ... -> environment. Later files override
// earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scraper.DelayMax < c.Scraper.DelayMin {
		return fmt.Errorf("invalid configuration: scraper delay_max %s is below delay_min %s", c.Scraper.DelayMax, c.Scraper.DelayMin)
	}
	return nil
}

// applyEnvOverrides applies REPETO_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if url := os.Getenv("REPETO_STORE_URL"); url != "" {
		config.Store.URL = url
	}
	if key := os.Getenv("REPETO_STORE_SERVICE_KEY"); key != "" {
		config.Store.ServiceKey = key
	}
	if rate := os.Getenv("REPETO_STORE_RATE_PER_SECOND"); rate != "" {
		if r, err := strconv.Atoi(rate); err == nil {
			config.Store.RatePerSecond = r
		}
	}

	if id := os.Getenv("REPETO_WORKER_ID"); id != "" {
		config.Worker.ID = id
	}
	if interval := os.Getenv("REPETO_WORKER_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Worker.PollInterval = d
		}
	}
	if attempts := os.Getenv("REPETO_WORKER_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Worker.MaxAttempts = a
		}
	}

	if batch := os.Getenv("REPETO_IMPORTER_BATCH_SIZE"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil {
			config.Importer.BatchSize = b
		}
	}
	if score := os.Getenv("REPETO_IMPORTER_MIN_QUALITY_SCORE"); score != "" {
		if s, err := strconv.Atoi(score); err == nil {
			config.Importer.MinQualityScore = s
		}
	}

	if stale := os.Getenv("REPETO_SCHEDULER_STALE_AFTER"); stale != "" {
		if d, err := time.ParseDuration(stale); err == nil {
			config.Scheduler.StaleAfter = d
		}
	}

	if path := os.Getenv("REPETO_CACHE_PATH"); path != "" {
		config.Cache.Path = path
	}

	if level := os.Getenv("REPETO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("REPETO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			if trimmed := trimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
