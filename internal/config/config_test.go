package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.QuestionAskerModel)
	assert.Equal(t, "claude-opus-4-6", cfg.Anthropic.ArticlePolishModel)
	assert.Equal(t, "gemini-embedding-001", cfg.Embedding.Model)
	assert.EqualValues(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.InDelta(t, 0.15, cfg.Pricing.Gemini.PerMTok, 0.001)
	assert.InDelta(t, 0.005, cfg.Pricing.Perplexity.PerQuery, 0.001)
	assert.Equal(t, 3, cfg.Pipeline.MaxPerspective)
	assert.Equal(t, 3, cfg.Pipeline.MaxConvTurn)
	assert.Equal(t, 3, cfg.Pipeline.MaxSearchQueriesPerTurn)
	assert.Equal(t, 3, cfg.Pipeline.SearchTopK)
	assert.Equal(t, 3, cfg.Pipeline.RetrieveTopK)
	assert.Equal(t, 10, cfg.Pipeline.MaxThreadNum)
	assert.Equal(t, 1, cfg.Pipeline.WindowSize)
	assert.Equal(t, 3, cfg.Pipeline.WindowExpandFactor)
	assert.InDelta(t, 0.6, cfg.Pipeline.InternalMinScore, 0.001)
	assert.InDelta(t, 1.3, cfg.Pipeline.BoostMultiplier, 0.001)
	assert.InDelta(t, 0.5, cfg.Pipeline.PenaltyMultiplier, 0.001)
	assert.True(t, cfg.Pipeline.DropUnmatchedTables)
	assert.True(t, cfg.Pipeline.WebRetrieverEnabled)
	assert.Equal(t, "filesystem", cfg.Sink.Driver)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
pipeline:
  max_perspective: 5
  max_thread_num: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Pipeline.MaxPerspective)
	assert.Equal(t, 4, cfg.Pipeline.MaxThreadNum)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pipeline.MaxConvTurn)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("STORMGEN_STORE_DRIVER", "postgres")
	t.Setenv("STORMGEN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("STORMGEN_PIPELINE_MAX_THREAD_NUM", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.MaxThreadNum)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all required validation fields
// populated, so individual tests can unset just the field they probe.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Embedding.APIKey = "gemini-key"
	cfg.Perplexity.Key = "pplx-key"
	cfg.Pipeline.MaxPerspective = 3
	cfg.Pipeline.MaxConvTurn = 3
	cfg.Pipeline.MaxThreadNum = 10
	cfg.Pipeline.InternalMinScore = 0.6
	cfg.Pipeline.WebRetrieverEnabled = true
	return cfg
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.MaxThreadNum = 10

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "embedding.api_key is required")
}

func TestValidate_WebRetrieverEnabledRequiresPerplexityKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Perplexity.Key = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity.key is required")
}

func TestValidate_WebRetrieverDisabledSkipsPerplexityKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Perplexity.Key = ""
	cfg.Pipeline.WebRetrieverEnabled = false

	assert.NoError(t, cfg.Validate())
}

func TestValidate_NegativeMaxPerspectiveRejected(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.MaxPerspective = -1

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_perspective must be >= 0")
}

func TestValidate_ZeroMaxPerspectiveAllowed(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.MaxPerspective = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_MaxThreadNumMustBePositive(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.MaxThreadNum = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_thread_num must be >= 1")
}

func TestValidate_InternalMinScoreBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.InternalMinScore = -0.1
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "internal_min_score")

	cfg.Pipeline.InternalMinScore = 1.1
	err = cfg.Validate()
	assert.Error(t, err)

	cfg.Pipeline.InternalMinScore = 0.6
	assert.NoError(t, cfg.Validate())
}
