// Package config handles configuration loading for marketpulse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"        yaml:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   yaml:"pipeline"`
	Data       DataConfig       `mapstructure:"data"       yaml:"data"`
	API        APIConfig        `mapstructure:"api"        yaml:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// LLMConfig holds the provider used for sector/company extraction.
type LLMConfig struct {
	Primary       string  `mapstructure:"primary"         yaml:"primary"` // "openai", "ollama", "gemini", "anthropic"
	OpenAIKey     string  `mapstructure:"openai_key"      yaml:"openai_key"`
	OpenAIBaseURL string  `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	OllamaURL     string  `mapstructure:"ollama_url"      yaml:"ollama_url"`
	GeminiKey     string  `mapstructure:"gemini_key"      yaml:"gemini_key"`
	AnthropicKey  string  `mapstructure:"anthropic_key"   yaml:"anthropic_key"`
	Model         string  `mapstructure:"model"           yaml:"model"`
	Temperature   float64 `mapstructure:"temperature"     yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"      yaml:"max_tokens"`
}

// ExtractionConfig controls how the extractor calls the LLM.
type ExtractionConfig struct {
	CallTimeout   time.Duration `mapstructure:"call_timeout"    yaml:"call_timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int           `mapstructure:"burst"           yaml:"burst"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"       yaml:"cache_ttl"` // 0 disables the cache
}

// ClassifierConfig selects and configures the sentiment classifier.
type ClassifierConfig struct {
	Backend     string        `mapstructure:"backend"      yaml:"backend"` // "http" or "lexicon"
	URL         string        `mapstructure:"url"          yaml:"url"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	InitTimeout time.Duration `mapstructure:"init_timeout" yaml:"init_timeout"`
}

// PipelineConfig holds aggregation run settings.
type PipelineConfig struct {
	Limit               int           `mapstructure:"limit"                 yaml:"limit"` // 0 = every article
	Workers             int           `mapstructure:"workers"               yaml:"workers"`
	SkipInitialAnalysis bool          `mapstructure:"skip_initial_analysis" yaml:"skip_initial_analysis"`
	RefreshSchedule     string        `mapstructure:"refresh_schedule"      yaml:"refresh_schedule"` // cron spec, empty disables
	RefreshTimeout      time.Duration `mapstructure:"refresh_timeout"       yaml:"refresh_timeout"`
}

// DataConfig locates the input files.
type DataConfig struct {
	ArticlesPath        string   `mapstructure:"articles_path"        yaml:"articles_path"`
	FeedURLs            []string `mapstructure:"feed_urls"            yaml:"feed_urls"`
	CoefficientsPath    string   `mapstructure:"coefficients_path"    yaml:"coefficients_path"`
	CompaniesDictionary string   `mapstructure:"companies_dictionary" yaml:"companies_dictionary"`
	SectorsDictionary   string   `mapstructure:"sectors_dictionary"   yaml:"sectors_dictionary"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.marketpulse/config.yaml (home directory)
//  3. /etc/marketpulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: MARKETPULSE_<SECTION>_<KEY>, e.g., MARKETPULSE_LLM_MODEL
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".marketpulse"))
	v.AddConfigPath("/etc/marketpulse")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The unprefixed switch predates the config file and is still what
	// deployments set.
	_ = v.BindEnv("pipeline.skip_initial_analysis", "MARKETPULSE_PIPELINE_SKIP_INITIAL_ANALYSIS", "SKIP_INITIAL_ANALYSIS")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.openai_key", "")
	v.SetDefault("llm.anthropic_key", "")
	v.SetDefault("llm.gemini_key", "")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)

	// Extraction defaults
	v.SetDefault("extraction.call_timeout", 90*time.Second)
	v.SetDefault("extraction.rate_per_second", 2.0)
	v.SetDefault("extraction.burst", 1)
	v.SetDefault("extraction.cache_ttl", time.Duration(0))

	// Classifier defaults
	v.SetDefault("classifier.backend", "http")
	v.SetDefault("classifier.url", "http://localhost:8500")
	v.SetDefault("classifier.call_timeout", 60*time.Second)
	v.SetDefault("classifier.init_timeout", 2*time.Minute)

	// Pipeline defaults
	v.SetDefault("pipeline.limit", 0)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.skip_initial_analysis", false)
	v.SetDefault("pipeline.refresh_schedule", "")
	v.SetDefault("pipeline.refresh_timeout", 30*time.Minute)

	// Data defaults
	v.SetDefault("data.articles_path", "economy_articles.csv")
	v.SetDefault("data.feed_urls", []string{})
	v.SetDefault("data.coefficients_path", "sector_coefficients.csv")
	v.SetDefault("data.companies_dictionary", "dictionary_companies.csv")
	v.SetDefault("data.sectors_dictionary", "dictionary_sectors.csv")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// overrideFromEnv reads provider keys from their conventional variable names
// when the prefixed form is not set.
func overrideFromEnv(cfg *Config) {
	if cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.AnthropicKey == "" {
		cfg.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.LLM.GeminiKey == "" {
		cfg.LLM.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Primary {
	case "openai", "ollama", "gemini", "anthropic":
	default:
		return fmt.Errorf("config: unknown llm.primary %q", c.LLM.Primary)
	}
	switch c.Classifier.Backend {
	case "http", "lexicon":
	default:
		return fmt.Errorf("config: unknown classifier.backend %q", c.Classifier.Backend)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	if c.Pipeline.Limit < 0 {
		return fmt.Errorf("config: pipeline.limit must not be negative, got %d", c.Pipeline.Limit)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Extraction.CallTimeout <= 0 || c.Classifier.CallTimeout <= 0 ||
		c.Classifier.InitTimeout <= 0 || c.Pipeline.RefreshTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	return nil
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
