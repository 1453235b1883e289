// Package llm provides the pipeline's LanguageModel abstraction: one
// configured instance per logical Role, with per-role usage counters,
// retry-on-transient-failure, and call-history recording.
package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/resilience"
	"github.com/dart-insight/storm-report/pkg/anthropic"
)

// LanguageModel is the stateless text-completion capability each pipeline
// stage drives. One instance is configured per Role; instances may share
// an underlying anthropic.Client and differ only in model name and max
// tokens.
type LanguageModel interface {
	// Complete sends prompt as a single user message with no prior
	// history and returns the model's text. On a blocked or empty
	// response it returns ("", nil) rather than an error — callers must
	// not treat that as failure.
	Complete(ctx context.Context, prompt string) (string, error)

	// Usage returns the cumulative token usage for this role since the
	// last ResetUsage.
	Usage() anthropic.TokenUsage

	// ResetUsage zeroes the usage counters.
	ResetUsage()
}

// RoleSet is the five configured LanguageModel instances the Orchestrator
// wires into each component.
type RoleSet map[Role]LanguageModel

// Get returns the LanguageModel for role, panicking if unconfigured —
// an unconfigured role is a startup-time configuration error, not a
// runtime condition a caller should handle.
func (s RoleSet) Get(role Role) LanguageModel {
	lm, ok := s[role]
	if !ok {
		panic("llm: no LanguageModel configured for role " + string(role))
	}
	return lm
}

// claudeModel implements LanguageModel against an anthropic.Client, with
// retry, circuit breaking, per-role usage accumulation, and optional
// call-history recording.
type claudeModel struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	retryCfg    resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	history     *History // nil disables recording
	role        Role

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// ClaudeConfig configures a claudeModel.
type ClaudeConfig struct {
	Role        Role
	Model       string
	MaxTokens   int64 // 0 uses DefaultMaxTokens(Role)
	Temperature *float64
	History     *History
}

// CallRetryConfig is the retry policy required by the LanguageModel
// contract: exponential backoff up to 5 minutes, at least 5 attempts,
// never giving up on rate-limit errors (IsTransient treats those as
// retryable). InitialBackoff/MaxBackoff are raised well past
// resilience.DefaultRetryConfig's API-call defaults so that a run of
// 429s backs off 10s, 20s, 40s, 80s, ... up to the 5-minute cap instead
// of giving up within a few seconds.
func CallRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.InitialBackoff = 10 * time.Second
	cfg.MaxBackoff = 5 * time.Minute
	return cfg
}

// NewClaudeModel constructs a LanguageModel for one Role backed by client.
func NewClaudeModel(client anthropic.Client, cfg ClaudeConfig) LanguageModel {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens(cfg.Role)
	}
	retryCfg := CallRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", string(cfg.Role))

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	role := cfg.Role
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", "anthropic"),
			zap.String("role", string(role)),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	// Each Role gets its own breaker from a private registry keyed by
	// role name, so a run of failures on one role's calls doesn't
	// short-circuit the others.
	breakers := resilience.NewServiceBreakers(breakerCfg)

	return &claudeModel{
		client:      client,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		retryCfg:    retryCfg,
		breaker:     breakers.Get(string(cfg.Role)),
		history:     cfg.History,
		role:        cfg.Role,
	}
}

func (m *claudeModel) Complete(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageRequest{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
		Temperature: m.temperature,
	}

	resp, err := resilience.ExecuteVal(ctx, m.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, m.retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return m.client.CreateMessage(ctx, req)
		})
	})

	if m.history != nil {
		m.history.Record(CallRecord{
			Role:   m.role,
			Model:  m.model,
			Prompt: prompt,
			Err:    err,
		})
	}

	if err != nil {
		return "", eris.Wrapf(err, "llm: complete role=%s", m.role)
	}

	m.accumulate(resp.Usage)
	resp.Usage.LogCost(m.model, string(m.role))

	text := extractText(resp)
	if isBlocked(resp) {
		return "", nil
	}
	return text, nil
}

func extractText(resp *anthropic.MessageResponse) string {
	for _, b := range resp.Content {
		if b.Type == "text" && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

// isBlocked recognizes a safety-filtered or otherwise empty completion.
// The contract requires returning "" rather than raising in this case.
func isBlocked(resp *anthropic.MessageResponse) bool {
	if resp.StopReason == "refusal" {
		return true
	}
	return extractText(resp) == ""
}

func (m *claudeModel) accumulate(u anthropic.TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.InputTokens += u.InputTokens
	m.usage.OutputTokens += u.OutputTokens
	m.usage.CacheCreationInputTokens += u.CacheCreationInputTokens
	m.usage.CacheReadInputTokens += u.CacheReadInputTokens
}

func (m *claudeModel) Usage() anthropic.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *claudeModel) ResetUsage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = anthropic.TokenUsage{}
}
