package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	OSM       OSMConfig       `yaml:"osm" mapstructure:"osm"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Recon     ReconConfig     `yaml:"recon" mapstructure:"recon"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
}

// StoreConfig configures the contact store backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	OpTimeoutSecs int    `yaml:"op_timeout_secs" mapstructure:"op_timeout_secs"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns"`
	EnablePostGIS bool   `yaml:"enable_postgis" mapstructure:"enable_postgis"`
	PreferredLang string `yaml:"preferred_language" mapstructure:"preferred_language"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	MaxPages int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// OSMConfig holds OpenStreetMap Overpass and Nominatim settings.
type OSMConfig struct {
	OverpassURL  string `yaml:"overpass_url" mapstructure:"overpass_url"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// SourcesConfig controls request cadence and retry behavior shared by all
// source clients.
type SourcesConfig struct {
	IntervalSecs       float64  `yaml:"interval_secs" mapstructure:"interval_secs"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxAttempts        int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Priority           []string `yaml:"priority" mapstructure:"priority"`
}

// ReconcileConfig holds identity matching thresholds.
type ReconcileConfig struct {
	NameSimilarity  float64 `yaml:"name_similarity" mapstructure:"name_similarity"`
	ProximityMeters float64 `yaml:"proximity_meters" mapstructure:"proximity_meters"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	Backend          string  `yaml:"backend" mapstructure:"backend"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OllamaConfig holds settings for a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ReconConfig holds defaults for the recon command.
type ReconConfig struct {
	ResultsDir     string   `yaml:"results_dir" mapstructure:"results_dir"`
	DefaultCountry string   `yaml:"default_country" mapstructure:"default_country"`
	DefaultRadius  float64  `yaml:"default_radius_km" mapstructure:"default_radius_km"`
	DefaultKinds   []string `yaml:"default_kinds" mapstructure:"default_kinds"`
}

// NotifyConfig configures the leads-discovered webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// envAliases binds conventional environment variable names alongside the
// ARTCRM_ prefixed ones.
var envAliases = map[string][]string{
	"store.database_url": {"ARTCRM_STORE_DATABASE_URL", "DATABASE_URL"},
	"google.key":         {"ARTCRM_GOOGLE_KEY", "GOOGLE_MAPS_API_KEY"},
	"anthropic.key":      {"ARTCRM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
	"gemini.key":         {"ARTCRM_GEMINI_KEY", "GEMINI_API_KEY"},
	"ollama.base_url":    {"ARTCRM_OLLAMA_BASE_URL", "OLLAMA_BASE_URL"},
	"log.level":          {"ARTCRM_LOG_LEVEL", "LOG_LEVEL"},
	"sources.interval_secs": {
		"ARTCRM_SOURCES_INTERVAL_SECS", "LEAD_SCOUT_RATE_LIMIT_SECONDS",
	},
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ARTCRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.op_timeout_secs", 10)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.enable_postgis", true)
	v.SetDefault("store.preferred_language", "de")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.max_pages", 3)
	v.SetDefault("google.page_size", 20)
	v.SetDefault("osm.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("osm.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("osm.user_agent", "artcrm-recon/1.0")
	v.SetDefault("sources.interval_secs", 1.0)
	v.SetDefault("sources.request_timeout_secs", 30)
	v.SetDefault("sources.max_attempts", 3)
	v.SetDefault("sources.initial_backoff_ms", 500)
	v.SetDefault("sources.max_backoff_ms", 8000)
	v.SetDefault("sources.priority", []string{"google_maps", "openstreetmap"})
	v.SetDefault("reconcile.name_similarity", 0.9)
	v.SetDefault("reconcile.proximity_meters", 150.0)
	v.SetDefault("enrich.backend", "ollama")
	v.SetDefault("enrich.concurrency", 2)
	v.SetDefault("enrich.timeout_secs", 60)
	v.SetDefault("enrich.rate_limit", 1.0)
	v.SetDefault("enrich.failure_threshold", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.1")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("recon.results_dir", "data/scout_results")
	v.SetDefault("recon.default_country", "DE")
	v.SetDefault("recon.default_radius_km", 10.0)
	v.SetDefault("recon.default_kinds", []string{"gallery", "cafe", "coworking"})

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

// Validate checks that the settings a command depends on are present.
// Section names match the command that needs them.
func (c *Config) Validate(section string) error {
	switch section {
	case "store":
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				return eris.New("config: store.database_url is required for the postgres driver (DATABASE_URL)")
			}
		case "sqlite":
		default:
			return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
		}
		return nil
	case "recon":
		if err := c.Validate("store"); err != nil {
			return err
		}
		if c.Sources.IntervalSecs < 0 {
			return eris.New("config: sources.interval_secs must not be negative")
		}
		if c.Reconcile.NameSimilarity <= 0 || c.Reconcile.NameSimilarity > 1 {
			return eris.Errorf("config: reconcile.name_similarity must be in (0, 1], got %v", c.Reconcile.NameSimilarity)
		}
		if c.Reconcile.ProximityMeters <= 0 {
			return eris.New("config: reconcile.proximity_meters must be positive")
		}
		if c.Enrich.Concurrency <= 0 {
			return eris.New("config: enrich.concurrency must be positive")
		}
		if c.Recon.ResultsDir == "" {
			return eris.New("config: recon.results_dir is required")
		}
		return nil
	default:
		return eris.Errorf("config: unknown section %q", section)
	}
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
