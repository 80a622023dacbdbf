package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Vendor names accepted by the vendor setting.
const (
	VendorGoogleCSE  = "googlecse"
	VendorSerpAPI    = "serpapi"
	VendorSearchAPI  = "searchapi"
	VendorScraperAPI = "scraperapi"
	VendorBrowser    = "browser"
)

// ArchiveConfig selects an optional incremental record archive. The JSON dump
// at the end of a run is always written; the archive additionally persists
// each record as it is extracted.
type ArchiveConfig struct {
	// Backend is one of "", "jsonl", "sqlite", "postgres", "csv".
	Backend string `mapstructure:"backend"`
	// Path is the file path for file-based backends.
	Path string `mapstructure:"path"`
	// DSN is the connection string for postgres.
	DSN string `mapstructure:"dsn"`
}

// Config stores all configuration for a harvest run.
type Config struct {
	Vendor     string   `mapstructure:"vendor"`
	TargetSite string   `mapstructure:"target_site"`
	Queries    []string `mapstructure:"queries"`

	MaxQueries       int `mapstructure:"max_queries"`
	MaxPagesPerQuery int `mapstructure:"max_pages_per_query"`
	MaxURLs          int `mapstructure:"max_urls"`
	Concurrency      int `mapstructure:"concurrency"`

	RateLimit  float64       `mapstructure:"rate_limit"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`

	RespectRobots    bool   `mapstructure:"respect_robots"`
	SeedSitemaps     bool   `mapstructure:"seed_sitemaps"`
	CollectOverviews bool   `mapstructure:"collect_overviews"`
	UserAgent        string `mapstructure:"user_agent"`
	Fingerprint      string `mapstructure:"fingerprint"`
	ProxyFile        string `mapstructure:"proxy_file"`
	Headless         bool   `mapstructure:"headless"`

	OutputPath  string `mapstructure:"output_path"`
	SummaryPath string `mapstructure:"summary_path"`

	Archive   ArchiveConfig `mapstructure:"archive"`
	RedisAddr string        `mapstructure:"redis_addr"`

	MetricsPort int `mapstructure:"metrics_port"`

	// Vendor credentials. These come from the environment, never the config
	// file, so they stay out of version control.
	GoogleAPIKey   string `mapstructure:"google_search_api_key"`
	GoogleEngineID string `mapstructure:"google_search_engine_id"`
	SerpAPIKey     string `mapstructure:"serpapi_key"`
	SearchAPIKey   string `mapstructure:"searchapi_key"`
	ScraperAPIKey  string `mapstructure:"scraperapi_key"`
}

// Load reads magpie.yaml (if present) and the environment. Environment
// variables use the MAGPIE_ prefix, except the vendor credentials which keep
// their conventional unprefixed names.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("magpie")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MAGPIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep the names the vendors document
	_ = v.BindEnv("google_search_api_key", "GOOGLE_SEARCH_API_KEY")
	_ = v.BindEnv("google_search_engine_id", "GOOGLE_SEARCH_ENGINE_ID")
	_ = v.BindEnv("serpapi_key", "SERPAPI_KEY")
	_ = v.BindEnv("searchapi_key", "SEARCHAPI_KEY")
	_ = v.BindEnv("scraperapi_key", "SCRAPERAPI_KEY")

	v.SetDefault("vendor", VendorGoogleCSE)
	v.SetDefault("max_pages_per_query", 1)
	v.SetDefault("max_urls", 100)
	v.SetDefault("concurrency", 1)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("retry_delay", "5s")
	v.SetDefault("timeout", "30s")
	v.SetDefault("respect_robots", true)
	v.SetDefault("collect_overviews", true)
	v.SetDefault("fingerprint", "chrome")
	v.SetDefault("headless", true)
	v.SetDefault("output_path", "magpie_data.json")
	v.SetDefault("summary_path", "magpie_summary.json")

	// Config file is optional when not named explicitly; env and flags can
	// carry everything.
	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the run can start: the vendor is known and its
// credential is present. This runs before any network call so a missing key
// fails immediately.
func (c *Config) Validate() error {
	if len(c.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}

	switch c.Vendor {
	case VendorGoogleCSE:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_SEARCH_API_KEY is required for vendor %q", c.Vendor)
		}
		if c.GoogleEngineID == "" {
			return fmt.Errorf("GOOGLE_SEARCH_ENGINE_ID is required for vendor %q", c.Vendor)
		}
	case VendorSerpAPI:
		if c.SerpAPIKey == "" {
			return fmt.Errorf("SERPAPI_KEY is required for vendor %q", c.Vendor)
		}
	case VendorSearchAPI:
		if c.SearchAPIKey == "" {
			return fmt.Errorf("SEARCHAPI_KEY is required for vendor %q", c.Vendor)
		}
	case VendorScraperAPI:
		if c.ScraperAPIKey == "" {
			return fmt.Errorf("SCRAPERAPI_KEY is required for vendor %q", c.Vendor)
		}
	case VendorBrowser:
		// No credential needed
	default:
		return fmt.Errorf("unknown vendor %q", c.Vendor)
	}

	switch c.Archive.Backend {
	case "", "jsonl", "sqlite", "csv":
	case "postgres":
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required for the postgres archive")
		}
	default:
		return fmt.Errorf("unknown archive backend %q", c.Archive.Backend)
	}

	if c.Archive.Backend != "" && c.Archive.Backend != "postgres" && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required for the %s archive", c.Archive.Backend)
	}

	return nil
}
