package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"datakraken/internal/snapshot"
)

// PolicyConfig declares the cache policy for one source, as written in the
// config file.
type PolicyConfig struct {
	Mode       string  `mapstructure:"mode"`
	TTLSeconds float64 `mapstructure:"ttl_seconds"`
	CacheTag   string  `mapstructure:"cache_tag"`
	AsOfBucket string  `mapstructure:"as_of_bucket"`
}

// Policy converts the declaration into a snapshot.Policy.
func (p PolicyConfig) Policy() (snapshot.Policy, error) {
	mode, err := snapshot.ParseMode(p.Mode)
	if err != nil {
		return snapshot.Policy{}, err
	}

	if mode == snapshot.ModeTTL && p.TTLSeconds <= 0 {
		return snapshot.Policy{}, fmt.Errorf("mode ttl requires ttl_seconds > 0")
	}

	return snapshot.Policy{
		Mode:   mode,
		TTL:    time.Duration(p.TTLSeconds * float64(time.Second)),
		Bucket: p.AsOfBucket,
	}, nil
}

// FirdsQueryConfig selects one FCA FIRDS registry listing to snapshot.
type FirdsQueryConfig struct {
	FileType        string `mapstructure:"file_type"`
	PublicationDate string `mapstructure:"publication_date"`
}

// Config holds all configuration for the datakraken collector.
type Config struct {
	// DataRoot is the directory (or SQLite file location) snapshots are
	// persisted under.
	DataRoot string `mapstructure:"data_root"`

	// StoreBackend selects the snapshot store: "fs" or "sqlite".
	StoreBackend string `mapstructure:"store_backend"`

	// Base URLs for the external sources (configurable for testing).
	JustETFBaseURL  string `mapstructure:"justetf_base_url"`
	FCAFirdsBaseURL string `mapstructure:"fca_firds_base_url"`

	// Items to snapshot.
	ISINs        []string           `mapstructure:"isins"`
	FirdsQueries []FirdsQueryConfig `mapstructure:"firds_queries"`

	// DiscoverProfiles snapshots the justETF profile sitemap alongside the
	// listed ISINs, so the ETF universe itself flows through the cache.
	DiscoverProfiles bool `mapstructure:"discover_profiles"`

	// Policies maps a source name ("justetf", "fca_firds") to its cache
	// policy declaration.
	Policies map[string]PolicyConfig `mapstructure:"policies"`

	// Workers bounds batch concurrency.
	Workers int `mapstructure:"workers"`
}

// SnapshotDBPath returns the SQLite file used when StoreBackend is "sqlite".
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.DataRoot, "snapshots.db")
}

// RunsDir returns the directory batch run logs are written under.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataRoot, "runs")
}

// PolicyFor returns the configured policy for source, defaulting to a
// one-day TTL when the source has no declaration.
func (c *Config) PolicyFor(source string) (snapshot.Policy, error) {
	pc, ok := c.Policies[source]
	if !ok {
		return snapshot.TTL(24 * time.Hour), nil
	}
	pol, err := pc.Policy()
	if err != nil {
		return snapshot.Policy{}, fmt.Errorf("policy for %s: %w", source, err)
	}
	return pol, nil
}

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
//
// Expected environment variables:
//   - DATA_ROOT (required)
//   - STORE_BACKEND (optional, "fs" or "sqlite", defaults to "fs")
//   - JUSTETF_BASE_URL (optional, defaults to production)
//   - FCA_FIRDS_BASE_URL (optional, defaults to production)
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("store_backend", "fs")
	v.SetDefault("justetf_base_url", "https://www.justetf.com")
	v.SetDefault("fca_firds_base_url", "https://api.data.fca.org.uk/fca_data_firds_files")
	v.SetDefault("workers", 4)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.datakraken")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	v.BindEnv("data_root", "DATA_ROOT")
	v.BindEnv("store_backend", "STORE_BACKEND")
	v.BindEnv("justetf_base_url", "JUSTETF_BASE_URL")
	v.BindEnv("fca_firds_base_url", "FCA_FIRDS_BASE_URL")
	v.BindEnv("discover_profiles", "DISCOVER_PROFILES")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var missing []string
	if config.DataRoot == "" {
		missing = append(missing, "DATA_ROOT")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch config.StoreBackend {
	case "fs", "sqlite":
	default:
		return nil, fmt.Errorf("unknown store_backend %q (want fs or sqlite)", config.StoreBackend)
	}

	// Fail on malformed policy declarations at load time, not mid-batch.
	for source, pc := range config.Policies {
		if _, err := pc.Policy(); err != nil {
			return nil, fmt.Errorf("policy for %s: %w", source, err)
		}
	}

	return config, nil
}
