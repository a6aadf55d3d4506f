package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Heal     HealConfig     `yaml:"heal" mapstructure:"heal"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the reference data artifacts.
type DataConfig struct {
	// Dataset is the raw postal reference table (.csv or .xlsx).
	Dataset string `yaml:"dataset" mapstructure:"dataset"`

	// Artifact is the prebuilt sqlite index database. Preferred over a raw
	// rebuild when present.
	Artifact string `yaml:"artifact" mapstructure:"artifact"`

	// Boundaries points at city boundary definitions (.geojson or .shp).
	Boundaries string `yaml:"boundaries" mapstructure:"boundaries"`

	// BoundaryNameField is the shapefile attribute carrying the city name.
	BoundaryNameField string `yaml:"boundary_name_field" mapstructure:"boundary_name_field"`

	// EmbeddingCorpus is the precomputed embedding corpus (JSON). The
	// semantic fallback tier also needs a query encoder wired by the host
	// process; the CLI ships none, so setting only this path logs a warning
	// and leaves the tier disabled.
	EmbeddingCorpus string `yaml:"embedding_corpus" mapstructure:"embedding_corpus"`
}

// ResolverConfig tunes the tiered resolver and index build.
type ResolverConfig struct {
	EmbeddingTopK int `yaml:"embedding_top_k" mapstructure:"embedding_top_k"`

	// Region bounds accepted dataset coordinates: min_lat, max_lat, min_lon,
	// max_lon. Zero values disable the filter.
	Region RegionConfig `yaml:"region" mapstructure:"region"`
}

// RegionConfig is the dataset coordinate acceptance window.
type RegionConfig struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// GeocoderConfig configures the external Nominatim-compatible geocoder. An
// empty BaseURL disables external geocoding; the pipeline degrades to
// internal resolution only.
type GeocoderConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	CacheTTLHours   int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// HealConfig tunes the self-healing orchestrator.
type HealConfig struct {
	StrategyTimeoutSecs int     `yaml:"strategy_timeout_secs" mapstructure:"strategy_timeout_secs"`
	RateLimitPerSec     float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	RetryAttempts       int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// BatchConfig configures batch resolution.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dataset", "data/postal_codes.csv")
	v.SetDefault("data.artifact", "data/refindex.db")
	v.SetDefault("data.boundaries", "")
	v.SetDefault("data.boundary_name_field", "NAME")
	v.SetDefault("data.embedding_corpus", "")
	v.SetDefault("resolver.embedding_top_k", 5)
	v.SetDefault("resolver.region.min_lat", 6.0)
	v.SetDefault("resolver.region.max_lat", 38.0)
	v.SetDefault("resolver.region.min_lon", 68.0)
	v.SetDefault("resolver.region.max_lon", 98.0)
	v.SetDefault("geocoder.base_url", "")
	v.SetDefault("geocoder.user_agent", "geofuse")
	v.SetDefault("geocoder.rate_limit_per_sec", 1.0)
	v.SetDefault("geocoder.cache_ttl_hours", 24)
	v.SetDefault("heal.strategy_timeout_secs", 10)
	v.SetDefault("heal.rate_limit_per_sec", 10.0)
	v.SetDefault("heal.retry_attempts", 3)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
