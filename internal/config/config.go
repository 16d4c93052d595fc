// Package config provides configuration structures and loading logic for Vigil.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the Vigil server.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Store     StoreConfig     `mapstructure:"store"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Correlate CorrelateConfig `mapstructure:"correlate"`
	DB        DBConfig        `mapstructure:"db"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Output    OutputConfig    `mapstructure:"output"`
}

// AppConfig defines application-level settings such as host and port.
type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// StoreConfig bounds the in-memory span buffer.
type StoreConfig struct {
	MaxSpans int `mapstructure:"max_spans"`
}

// IngestConfig defines thresholds applied at the trace ingestion boundary.
type IngestConfig struct {
	SlowDBSpanThresholdMs int64 `mapstructure:"slow_db_span_threshold_ms"`
}

// AnalysisConfig defines the tunables of the trace analyzer engine.
type AnalysisConfig struct {
	QueueSize            int   `mapstructure:"queue_size"`
	NPlusOneThreshold    int   `mapstructure:"n_plus_one_threshold"`
	SlowQueryMs          int64 `mapstructure:"slow_query_ms"`
	SlowExternalCallMs   int64 `mapstructure:"slow_external_call_ms"`
	ResolveAfterPasses   int   `mapstructure:"resolve_after_passes"`
	SchemaPromoteMatches int   `mapstructure:"schema_promote_matches"`
}

// AnomalyConfig defines the baselines for error-rate anomaly classification.
type AnomalyConfig struct {
	RecentWindow    string  `mapstructure:"recent_window"`
	SpikeMultiplier float64 `mapstructure:"spike_multiplier"`
	MinBaseline     float64 `mapstructure:"min_baseline"`
}

// CorrelateConfig defines the search bounds of the incident correlator.
type CorrelateConfig struct {
	WindowPadding   string `mapstructure:"window_padding"`
	CandidateTraces int    `mapstructure:"candidate_traces"`
	MaxSpans        int    `mapstructure:"max_spans"`
}

// DBConfig defines the SQLite persistence location.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig defines the selected Language Model provider and its operational parameters.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	OllamaURL   string  `mapstructure:"ollama_url"`
	OllamaModel string  `mapstructure:"ollama_model"`
	APIKey      string  `mapstructure:"-"`
}

// OutputConfig defines the notification channel for flagged incidents.
type OutputConfig struct {
	WebhookURLEnv string `mapstructure:"webhook_url_env"`
	WebhookURL    string `mapstructure:"-"`
	Enabled       bool   `mapstructure:"enabled"`
}

// GetRecentWindowDuration parses the configured anomaly window into a time.Duration.
func (c *AnomalyConfig) GetRecentWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.RecentWindow)
	if d == 0 {
		return 15 * time.Minute
	}
	return d
}

// GetWindowPaddingDuration parses the correlation window padding into a time.Duration.
func (c *CorrelateConfig) GetWindowPaddingDuration() time.Duration {
	d, _ := time.ParseDuration(c.WindowPadding)
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

// Load loads configuration from config.yaml or environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/vigil")

	// Allow environment variables to override config
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("app.host", "0.0.0.0")
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("store.max_spans", 10000)
	viper.SetDefault("ingest.slow_db_span_threshold_ms", 500)
	viper.SetDefault("analysis.queue_size", 256)
	viper.SetDefault("analysis.n_plus_one_threshold", 5)
	viper.SetDefault("analysis.slow_query_ms", 500)
	viper.SetDefault("analysis.slow_external_call_ms", 2000)
	viper.SetDefault("analysis.resolve_after_passes", 10)
	viper.SetDefault("analysis.schema_promote_matches", 3)
	viper.SetDefault("anomaly.recent_window", "15m")
	viper.SetDefault("anomaly.spike_multiplier", 3.0)
	viper.SetDefault("anomaly.min_baseline", 1.0)
	viper.SetDefault("correlate.window_padding", "2m")
	viper.SetDefault("correlate.candidate_traces", 10)
	viper.SetDefault("correlate.max_spans", 200)
	viper.SetDefault("db.path", "./data/vigil.db")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 1000)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Get API keys from environment
	if cfg.LLM.Provider != "ollama" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.Output.WebhookURLEnv != "" {
		cfg.Output.WebhookURL = os.Getenv(cfg.Output.WebhookURLEnv)
	}

	return &cfg, nil
}

// ProviderType returns the LLM provider type
func (c *LLMConfig) ProviderType() string {
	return strings.ToLower(c.Provider)
}
