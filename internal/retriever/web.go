package retriever

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/resilience"
	"github.com/dart-insight/storm-report/pkg/perplexity"
)

// WebRetriever is the optional external-search backend HybridRetriever
// fuses against the internal corpus. Unlike Retriever, it takes a single
// query string — multi-query fan-out and dedup happen in HybridRetriever.
type WebRetriever interface {
	RetrieveWeb(ctx context.Context, query string, k int) ([]model.Passage, error)
}

// PerplexityWebRetriever implements WebRetriever on top of Perplexity's
// search-grounded chat completion API, returning the response's answer
// text as a single passage; citations attached to the response are not
// used.
type PerplexityWebRetriever struct {
	client  perplexity.Client
	breaker *resilience.CircuitBreaker
}

// NewPerplexityWebRetriever wraps an already-configured perplexity.Client.
// Calls go through a circuit breaker so a failing Perplexity deployment
// stops being hammered and HybridRetriever falls back to internal-only
// results immediately instead of waiting out the client's own retry loop
// on every query.
func NewPerplexityWebRetriever(client perplexity.Client) *PerplexityWebRetriever {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", "perplexity"),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	breakers := resilience.NewServiceBreakers(breakerCfg)
	return &PerplexityWebRetriever{
		client:  client,
		breaker: breakers.Get("perplexity"),
	}
}

func (w *PerplexityWebRetriever) RetrieveWeb(ctx context.Context, query string, k int) ([]model.Passage, error) {
	resp, err := resilience.ExecuteVal(ctx, w.breaker, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return w.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "user", Content: query},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "web retriever: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	if k <= 0 {
		return nil, nil
	}

	// Perplexity returns one synthesized answer rather than discrete
	// passages; treat it as a single web passage so it composes with
	// internal passages in a shared score space.
	passage := model.Passage{
		URL:       webPassageURL(query),
		Title:     query,
		Snippets:  []string{resp.Choices[0].Message.Content},
		Score:     1.0,
		SourceTag: "web",
	}
	return []model.Passage{passage}, nil
}

func webPassageURL(query string) string {
	sum := sha1.Sum([]byte(query))
	return "web_" + hex.EncodeToString(sum[:8])
}
