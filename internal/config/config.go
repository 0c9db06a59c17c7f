package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/deepbiz/directory/pkg/anthropic"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// APIConfig holds the analysis API credentials.
type APIConfig struct {
	Key            string   `yaml:"key" mapstructure:"key"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs     int `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs    int `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// TimeoutSecs bounds each model request attempt.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	PlacesKey string `yaml:"places_key" mapstructure:"places_key"`
	Language  string `yaml:"language" mapstructure:"language"`
	Region    string `yaml:"region" mapstructure:"region"`
	MaxPages  int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures website fetching for analysis.
type FetchConfig struct {
	MaxChars            int `yaml:"max_chars" mapstructure:"max_chars"`
	MinChars            int `yaml:"min_chars" mapstructure:"min_chars"`
	LocalTimeoutSecs    int `yaml:"local_timeout_secs" mapstructure:"local_timeout_secs"`
	RenderedTimeoutSecs int `yaml:"rendered_timeout_secs" mapstructure:"rendered_timeout_secs"`
}

// CacheConfig configures the analysis cache.
type CacheConfig struct {
	TTLDays           int `yaml:"ttl_days" mapstructure:"ttl_days"`
	SweepIntervalMins int `yaml:"sweep_interval_mins" mapstructure:"sweep_interval_mins"`
}

// TTL returns the validity window of new analyses.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// SweepInterval returns how often serve evicts expired analyses.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// MatchConfig configures entity matching.
type MatchConfig struct {
	Policy         string  `yaml:"policy" mapstructure:"policy"`
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"`
	CandidateLimit int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	AddressWeight  float64 `yaml:"address_weight" mapstructure:"address_weight"`
	NameWeight     float64 `yaml:"name_weight" mapstructure:"name_weight"`
}

// IngestConfig configures discovery and the batch passes.
type IngestConfig struct {
	UpdateMode        string `yaml:"update_mode" mapstructure:"update_mode"`
	RequestIntervalMs int    `yaml:"request_interval_ms" mapstructure:"request_interval_ms"`
	RetryAttempts     int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RecycleEvery      int    `yaml:"recycle_every" mapstructure:"recycle_every"`
	MaxPages          int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// RequestInterval returns the minimum gap between listing requests.
func (c IngestConfig) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMs) * time.Millisecond
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Anthropic map[string]anthropic.Pricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"api.key":            "DEEPBIZ_API_KEY",
	"store.database_url": "DATABASE_URL",
	"anthropic.key":      "ANTHROPIC_API_KEY",
	"google.places_key":  "GOOGLE_MAPS_API_KEY",
	"jina.key":           "JINA_API_KEY",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEEPBIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "DEEPBIZ_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "deepbiz.db")
	v.SetDefault("api.key", "")
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 120)
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 45)
	v.SetDefault("anthropic.max_retries", 0)
	v.SetDefault("google.places_key", "")
	v.SetDefault("google.language", "ja")
	v.SetDefault("google.region", "jp")
	v.SetDefault("google.max_pages", 3)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("fetch.max_chars", 15000)
	v.SetDefault("fetch.min_chars", 100)
	v.SetDefault("fetch.local_timeout_secs", 10)
	v.SetDefault("fetch.rendered_timeout_secs", 45)
	v.SetDefault("cache.ttl_days", 90)
	v.SetDefault("cache.sweep_interval_mins", 60)
	v.SetDefault("match.policy", "combined")
	v.SetDefault("match.threshold", 0.75)
	v.SetDefault("match.candidate_limit", 100)
	v.SetDefault("match.address_weight", 0.7)
	v.SetDefault("match.name_weight", 0.3)
	v.SetDefault("ingest.update_mode", "skip")
	v.SetDefault("ingest.request_interval_ms", 1000)
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("ingest.retry_backoff_ms", 2000)
	v.SetDefault("ingest.recycle_every", 50)
	v.SetDefault("ingest.max_pages", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

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

// Validate checks the values the given command needs. Modes: serve,
// analyze, ingest-places, ingest-listing, ingest-details, ingest-import,
// merge, cache, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}

	needAnalysis := func() {
		if c.Anthropic.Key == "" {
			add("anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			add("anthropic.model is required")
		}
		if c.Anthropic.TimeoutSecs <= 0 {
			add("anthropic.timeout_secs must be > 0")
		}
		if c.Anthropic.MaxRetries < 0 {
			add("anthropic.max_retries must be >= 0")
		}
		if c.Fetch.MaxChars <= 0 {
			add("fetch.max_chars must be > 0")
		}
		if c.Cache.TTLDays <= 0 {
			add("cache.ttl_days must be > 0")
		}
	}
	needMatch := func() {
		switch c.Match.Policy {
		case "", "combined", "either_axis":
		default:
			add("match.policy must be combined or either_axis, got %q", c.Match.Policy)
		}
		if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
			add("match.threshold must be in (0, 1]")
		}
		if c.Match.AddressWeight < 0 || c.Match.NameWeight < 0 || c.Match.AddressWeight+c.Match.NameWeight <= 0 {
			add("match weights must be >= 0 with a positive sum")
		}
		if c.Match.CandidateLimit <= 0 {
			add("match.candidate_limit must be > 0")
		}
	}
	needIngest := func() {
		needMatch()
		if c.Ingest.UpdateMode != "skip" && c.Ingest.UpdateMode != "overwrite" {
			add("ingest.update_mode must be skip or overwrite, got %q", c.Ingest.UpdateMode)
		}
		if c.Ingest.RetryAttempts <= 0 {
			add("ingest.retry_attempts must be > 0")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.API.Key == "" {
			add("api.key is required")
		}
		needAnalysis()
		if c.Cache.SweepIntervalMins <= 0 {
			add("cache.sweep_interval_mins must be > 0")
		}
	case "analyze":
		needAnalysis()
	case "ingest-places":
		needIngest()
		if c.Google.PlacesKey == "" {
			add("google.places_key is required")
		}
	case "ingest-listing", "ingest-details", "ingest-import":
		needIngest()
	case "merge":
		needMatch()
	case "cache", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. When cfg.File is set, logs
// are also written to a rotating file.
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

	var opts []zap.Option
	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zapCfg.Level)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
