// Package config loads and validates application configuration from a
// YAML file, environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Sink       SinkConfig       `yaml:"sink" mapstructure:"sink"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the KnowledgeStore database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API credentials and the model each of
// the five pipeline roles is configured to use. Several roles commonly
// share one model; they are still configured independently since the
// spec treats them as separately tunable LM slots.
type AnthropicConfig struct {
	Key                string `yaml:"key" mapstructure:"key"`
	ConvSimulatorModel string `yaml:"conv_simulator_model" mapstructure:"conv_simulator_model"`
	QuestionAskerModel string `yaml:"question_asker_model" mapstructure:"question_asker_model"`
	OutlineGenModel    string `yaml:"outline_gen_model" mapstructure:"outline_gen_model"`
	ArticleGenModel    string `yaml:"article_gen_model" mapstructure:"article_gen_model"`
	ArticlePolishModel string `yaml:"article_polish_model" mapstructure:"article_polish_model"`
}

// EmbeddingConfig holds Gemini embedding API settings. Dimension must
// match whatever dimension the (out-of-scope) ingestion pipeline
// embedded the KnowledgeStore corpus with.
type EmbeddingConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	Dimension int32  `yaml:"dimension" mapstructure:"dimension"`
}

// PerplexityConfig holds Perplexity web-search API settings, backing
// the HybridRetriever's WebRetriever.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiPricing           `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// GeminiPricing holds Gemini embedding pricing.
type GeminiPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// PipelineConfig configures the four-stage generation pipeline: every
// knob named in the spec's Configuration block, plus retrieval tuning
// that the stages and the hybrid retriever read.
type PipelineConfig struct {
	MaxPerspective          int     `yaml:"max_perspective" mapstructure:"max_perspective"`
	MaxConvTurn             int     `yaml:"max_conv_turn" mapstructure:"max_conv_turn"`
	MaxSearchQueriesPerTurn int     `yaml:"max_search_queries_per_turn" mapstructure:"max_search_queries_per_turn"`
	SearchTopK              int     `yaml:"search_top_k" mapstructure:"search_top_k"`
	RetrieveTopK            int     `yaml:"retrieve_top_k" mapstructure:"retrieve_top_k"`
	MaxThreadNum            int     `yaml:"max_thread_num" mapstructure:"max_thread_num"`
	WindowSize              int     `yaml:"window_size" mapstructure:"window_size"`
	WindowExpandFactor      int     `yaml:"window_expand_factor" mapstructure:"window_expand_factor"`
	InternalMinScore        float64 `yaml:"internal_min_score" mapstructure:"internal_min_score"`
	BoostMultiplier         float64 `yaml:"boost_multiplier" mapstructure:"boost_multiplier"`
	PenaltyMultiplier       float64 `yaml:"penalty_multiplier" mapstructure:"penalty_multiplier"`
	DropUnmatchedTables     bool    `yaml:"drop_unmatched_tables" mapstructure:"drop_unmatched_tables"`
	WebRetrieverEnabled     bool    `yaml:"web_retriever_enabled" mapstructure:"web_retriever_enabled"`
	MaxCostPerReportUSD     float64 `yaml:"max_cost_per_report_usd" mapstructure:"max_cost_per_report_usd"`
}

// SinkConfig configures where generated reports and job-status events
// are written.
type SinkConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"` // "filesystem" or "postgres"
	RunsDir string `yaml:"runs_dir" mapstructure:"runs_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields for running a generation.
func (c *Config) Validate() error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Embedding.APIKey == "" {
		errs = append(errs, "embedding.api_key is required")
	}
	if c.Pipeline.WebRetrieverEnabled && c.Perplexity.Key == "" {
		errs = append(errs, "perplexity.key is required when pipeline.web_retriever_enabled is true")
	}
	if c.Pipeline.MaxPerspective < 0 {
		errs = append(errs, "pipeline.max_perspective must be >= 0")
	}
	if c.Pipeline.MaxConvTurn < 0 {
		errs = append(errs, "pipeline.max_conv_turn must be >= 0")
	}
	if c.Pipeline.MaxThreadNum < 1 {
		errs = append(errs, "pipeline.max_thread_num must be >= 1")
	}
	if c.Pipeline.InternalMinScore < 0 || c.Pipeline.InternalMinScore > 1 {
		errs = append(errs, "pipeline.internal_min_score must be between 0.0 and 1.0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STORMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("anthropic.conv_simulator_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.question_asker_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.outline_gen_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.article_gen_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.article_polish_model", "claude-opus-4-6")

	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.dimension", 768)

	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")

	v.SetDefault("pricing.gemini.per_mtok", 0.15)
	v.SetDefault("pricing.perplexity.per_query", 0.005)

	v.SetDefault("pipeline.max_perspective", 3)
	v.SetDefault("pipeline.max_conv_turn", 3)
	v.SetDefault("pipeline.max_search_queries_per_turn", 3)
	v.SetDefault("pipeline.search_top_k", 3)
	v.SetDefault("pipeline.retrieve_top_k", 3)
	v.SetDefault("pipeline.max_thread_num", 10)
	v.SetDefault("pipeline.window_size", 1)
	v.SetDefault("pipeline.window_expand_factor", 3)
	v.SetDefault("pipeline.internal_min_score", 0.6)
	v.SetDefault("pipeline.boost_multiplier", 1.3)
	v.SetDefault("pipeline.penalty_multiplier", 0.5)
	v.SetDefault("pipeline.drop_unmatched_tables", true)
	v.SetDefault("pipeline.web_retriever_enabled", true)
	v.SetDefault("pipeline.max_cost_per_report_usd", 5.0)

	v.SetDefault("sink.driver", "filesystem")
	v.SetDefault("sink.runs_dir", "./runs")

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
