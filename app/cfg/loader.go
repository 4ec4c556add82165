package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/sitewatch.db" description:"Path to the SQLite database file"`

	// HTTP API
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://watch.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (API is disabled when empty)"`

	// Fetching
	UserAgent    string `long:"user-agent" env:"USER_AGENT" default:"SiteWatch/1.0 (+https://github.com/lysyi3m/site-watch)" description:"User agent string for HTTP requests"`
	FetchTimeout int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Fetch timeout in seconds"`
	FetchRetries int    `long:"fetch-retries" env:"FETCH_RETRIES" default:"0" description:"Extra attempts for transient fetch errors"`

	// Scheduling
	SchedulerInterval int `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"3600" description:"Scheduler interval in seconds (0 disables the internal scheduler)"`
	ScrapeDelay       int `long:"scrape-delay" env:"SCRAPE_DELAY" default:"1000" description:"Delay between scrapes of one scheduler run in milliseconds"`
	ScrapeWorkers     int `long:"scrape-workers" env:"SCRAPE_WORKERS" default:"1" description:"Number of hosts scraped in parallel during a scheduler run"`
	LeaseDuration     int `long:"lease-duration" env:"LEASE_DURATION" default:"600" description:"How long a scheduler instance holds a website claim, in seconds"`

	// Extraction
	DiffMode     string `long:"diff-mode" env:"DIFF_MODE" default:"count" choice:"count" choice:"identity" description:"How new items are detected"`
	SelectorsDir string `long:"selectors-dir" env:"SELECTORS_DIR" default:"./selectors" description:"Directory containing per-category selector overrides"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Lisbon)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := parse(os.Args[1:])
	if err != nil || cfg == nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		FetchTimeout:      raw.FetchTimeout,
		FetchRetries:      raw.FetchRetries,
		SchedulerInterval: raw.SchedulerInterval,
		ScrapeDelay:       raw.ScrapeDelay,
		ScrapeWorkers:     raw.ScrapeWorkers,
		LeaseDuration:     raw.LeaseDuration,
		DiffMode:          raw.DiffMode,
		SelectorsDir:      raw.SelectorsDir,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	nonNegativeFields := map[string]int{
		"fetch timeout":      cfg.FetchTimeout,
		"fetch retries":      cfg.FetchRetries,
		"scheduler interval": cfg.SchedulerInterval,
		"scrape delay":       cfg.ScrapeDelay,
		"lease duration":     cfg.LeaseDuration,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if cfg.ScrapeWorkers < 1 {
		return fmt.Errorf("scrape workers must be at least 1")
	}

	return nil
}

// Set installs cfg as the global configuration.
func Set(cfg *Cfg) {
	globalCfg = cfg
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
