package retriever

import (
	"sort"
	"strings"

	"github.com/dart-insight/storm-report/internal/model"
)

// queryIntent is the rule-based classification of what a dialogue
// question is asking for, used to decide how aggressively to filter
// passages that do not mention a named target entity.
type queryIntent int

const (
	intentAnalytical queryIntent = iota
	intentFactoid
)

// analyticalKeywords and factoidKeywords are deliberately conservative:
// analytical wins ties (the default) so that cross-company context is
// never silently dropped for a query whose intent is ambiguous.
var analyticalKeywords = []string{
	"비교", "대비", "경쟁", "경쟁사", "분석", "SWOT", "전망", "추세", "점유율", "순위", "성장률",
}

var factoidKeywords = []string{
	"설립", "설립일", "주소", "본사", "대표", "대표이사", "CEO", "임원", "전화", "연락처", "주주", "지분",
}

func classifyIntent(query string) queryIntent {
	for _, kw := range analyticalKeywords {
		if strings.Contains(query, kw) {
			return intentAnalytical
		}
	}
	for _, kw := range factoidKeywords {
		if strings.Contains(query, kw) {
			return intentFactoid
		}
	}
	return intentAnalytical
}

// RerankConfig tunes the scoring/filtering behavior. Zero or negative
// multipliers fall back to their defaults; DropUnmatchedTables is used as
// given, so a zero RerankConfig keeps unmatched tables.
type RerankConfig struct {
	BoostMultiplier     float64 // default 1.3, applied to matched passages
	PenaltyMultiplier   float64 // default 0.5, applied to unmatched analytical text passages
	DropUnmatchedTables bool    // true in DefaultRerankConfig: unmatched table chunks are dropped outright for analytical queries
}

// DefaultRerankConfig returns the spec's stated defaults.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{BoostMultiplier: 1.3, PenaltyMultiplier: 0.5, DropUnmatchedTables: true}
}

// EntityAwareReranker boosts passages that name a query's target
// company and filters out cross-reference noise, with the aggressiveness
// of filtering depending on query intent.
type EntityAwareReranker struct {
	aliases model.AliasRegistry
	cfg     RerankConfig
}

// NewEntityAwareReranker constructs a reranker against a fixed alias
// registry, typically loaded once via KnowledgeStore.CompanyAliases,
// using the spec's default boost/penalty multipliers.
func NewEntityAwareReranker(aliases model.AliasRegistry) *EntityAwareReranker {
	return NewEntityAwareRerankerWithConfig(aliases, DefaultRerankConfig())
}

// NewEntityAwareRerankerWithConfig constructs a reranker with an explicit
// RerankConfig, typically sourced from internal/config's PipelineConfig.
func NewEntityAwareRerankerWithConfig(aliases model.AliasRegistry, cfg RerankConfig) *EntityAwareReranker {
	if cfg.BoostMultiplier <= 0 {
		cfg.BoostMultiplier = 1.3
	}
	if cfg.PenaltyMultiplier <= 0 {
		cfg.PenaltyMultiplier = 0.5
	}
	return &EntityAwareReranker{aliases: aliases, cfg: cfg}
}

// Rerank applies query-intent classification, target entity extraction,
// and dual filtering+scoring, returning passages resorted by adjusted
// score. If no target entity is found in the query, candidates are
// returned unchanged.
func (r *EntityAwareReranker) Rerank(query string, passages []model.Passage) []model.Passage {
	targets := r.extractTargets(query)
	if len(targets) == 0 {
		return passages
	}

	intent := classifyIntent(query)

	out := make([]model.Passage, 0, len(passages))
	for _, p := range passages {
		haystack := p.Title + " " + joinSnippets(p.Snippets)
		matched := containsAny(haystack, targets)

		switch {
		case matched:
			p.Score *= r.cfg.BoostMultiplier
		case intent == intentFactoid:
			continue
		case intent == intentAnalytical && p.ChunkType == model.ChunkTypeTable && r.cfg.DropUnmatchedTables:
			continue
		case intent == intentAnalytical && p.ChunkType == model.ChunkTypeText:
			p.Score *= r.cfg.PenaltyMultiplier
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// extractTargets returns the union of alias sets for every canonical
// company whose alias appears as a substring of query.
func (r *EntityAwareReranker) extractTargets(query string) map[string]struct{} {
	targets := make(map[string]struct{})
	for canonical := range r.aliases {
		for alias := range r.aliases.Aliases(canonical) {
			if alias != "" && strings.Contains(query, alias) {
				for a := range r.aliases.Aliases(canonical) {
					targets[a] = struct{}{}
				}
				break
			}
		}
	}
	return targets
}

func containsAny(haystack string, targets map[string]struct{}) bool {
	for t := range targets {
		if t != "" && strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

func joinSnippets(snippets []string) string {
	return strings.Join(snippets, " ")
}
