package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Heat     HeatConfig     `yaml:"heat" mapstructure:"heat"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// BusyTimeoutMs is the SQLite busy_timeout pragma.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// MatchConfig tunes duplicate matching.
type MatchConfig struct {
	MinDomainSimilarity float64 `yaml:"min_domain_similarity" mapstructure:"min_domain_similarity"`
	MinContainmentLen   int     `yaml:"min_containment_len" mapstructure:"min_containment_len"`
	MaxContainmentExtra int     `yaml:"max_containment_extra" mapstructure:"max_containment_extra"`
	MaxNameWords        int     `yaml:"max_name_words" mapstructure:"max_name_words"`
	// ExtraGenericDomains are added to the built-in hosting denylist.
	ExtraGenericDomains []string `yaml:"extra_generic_domains" mapstructure:"extra_generic_domains"`
}

// HeatConfig holds the heat scoring tables and thresholds. Zero values fall
// back to scorer.DefaultHeatConfig.
type HeatConfig struct {
	// ProgramTiers maps a program name to a tier (A-D). Lookups ignore case.
	ProgramTiers map[string]string `yaml:"program_tiers" mapstructure:"program_tiers"`
	// TierPoints maps a tier to its pedigree points.
	TierPoints   map[string]int `yaml:"tier_points" mapstructure:"tier_points"`
	DefaultTier  string         `yaml:"default_tier" mapstructure:"default_tier"`
	TierUpgrades []TierUpgrade  `yaml:"tier_upgrades" mapstructure:"tier_upgrades"`

	DiscussionSource string   `yaml:"discussion_source" mapstructure:"discussion_source"`
	LaunchSources    []string `yaml:"launch_sources" mapstructure:"launch_sources"`
	PressSources     []string `yaml:"press_sources" mapstructure:"press_sources"`

	ViralPoints      int `yaml:"viral_points" mapstructure:"viral_points"`
	ViralComments    int `yaml:"viral_comments" mapstructure:"viral_comments"`
	TractionPoints   int `yaml:"traction_points" mapstructure:"traction_points"`
	TractionComments int `yaml:"traction_comments" mapstructure:"traction_comments"`

	RecencyDays int `yaml:"recency_days" mapstructure:"recency_days"`

	ProgramMax int `yaml:"program_max" mapstructure:"program_max"`
	BuzzMax    int `yaml:"buzz_max" mapstructure:"buzz_max"`
	SourcesMax int `yaml:"sources_max" mapstructure:"sources_max"`
	RecencyMax int `yaml:"recency_max" mapstructure:"recency_max"`
}

// TierUpgrade lifts a program to Tier when its cohort is one of Cohorts.
type TierUpgrade struct {
	Program string   `yaml:"program" mapstructure:"program"`
	Cohorts []string `yaml:"cohorts" mapstructure:"cohorts"`
	Tier    string   `yaml:"tier" mapstructure:"tier"`
}

// ClassifyConfig overrides the sector rules used when importing companies.
type ClassifyConfig struct {
	DefaultSector string       `yaml:"default_sector" mapstructure:"default_sector"`
	SectorRules   []SectorRule `yaml:"sector_rules" mapstructure:"sector_rules"`
}

// SectorRule assigns Sector when any pattern matches. Patterns are
// case-insensitive regular expressions.
type SectorRule struct {
	Sector   string   `yaml:"sector" mapstructure:"sector"`
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
}

// RetryConfig controls retries of transient store errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATHENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "athena.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("match.min_domain_similarity", 0.3)
	v.SetDefault("match.min_containment_len", 6)
	v.SetDefault("match.max_containment_extra", 5)
	v.SetDefault("match.max_name_words", 6)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "engine"
// for the store-backed batch commands and "serve" for the HTTP server.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 || (c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
		errs = append(errs, "store.min_conns must be between 0 and store.max_conns")
	}

	if c.Match.MinDomainSimilarity < 0 || c.Match.MinDomainSimilarity > 1 {
		errs = append(errs, "match.min_domain_similarity must be between 0 and 1")
	}
	if c.Match.MinContainmentLen < 1 {
		errs = append(errs, "match.min_containment_len must be >= 1")
	}
	if c.Match.MaxContainmentExtra < 0 {
		errs = append(errs, "match.max_containment_extra must be >= 0")
	}
	if c.Match.MaxNameWords < 1 {
		errs = append(errs, "match.max_name_words must be >= 1")
	}

	switch mode {
	case "engine":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
