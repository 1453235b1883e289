// Package article implements Stage 4a (ArticleGenerator) and Stage 4b
// (ArticlePolisher): section-parallel drafting against the curated
// InformationTable, global citation remapping, then lead synthesis and
// deduplication polish.
package article

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dart-insight/storm-report/internal/embed"
	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
)

// skippedHeadings are section titles generated separately by the
// Polisher's lead step; ArticleGenerator never drafts them itself.
var skippedHeadings = map[string]bool{
	"introduction": true,
	"conclusion":   true,
	"summary":      true,
}

const evidenceWordBudget = 1500

const sectionDraftPrompt = `You are writing one section of a Wikipedia-style analysis report about %s.

Section heading: %s

Evidence (cite each claim with its bracketed [N] index; numbers refer only to the list below):
%s

Write the section in Markdown, preserving the '#'/'##'/... hierarchy starting at level %d. Every claim backed by the evidence must carry an inline [N] citation. Do not add a "References" section. State explicit dates and units whenever citing numerical data.`

// Config bounds evidence selection and concurrency.
type Config struct {
	// RetrieveTopK caps local evidence passages per section.
	RetrieveTopK int
	// MaxThreadNum caps concurrent section drafts.
	MaxThreadNum int
}

// Generator drafts every top-level section of an outline concurrently.
type Generator struct {
	articleGen llm.LanguageModel
	embedder   embed.Embedder
	cfg        Config
}

// NewGenerator constructs a Generator. articleGen must be the
// RoleArticleGen language model; embedder is reused from retrieval so
// local evidence similarity uses the same vector space as the corpus.
func NewGenerator(articleGen llm.LanguageModel, embedder embed.Embedder, cfg Config) *Generator {
	return &Generator{articleGen: articleGen, embedder: embedder, cfg: cfg}
}

// Generate drafts one Section per selected top-level heading, concurrently,
// and returns them in outline order regardless of completion order.
func (g *Generator) Generate(ctx context.Context, topic string, refined *model.Outline, table *model.InformationTable) (*model.Article, error) {
	index := newEvidenceIndex(ctx, g.embedder, table)

	sections := selectSections(refined)
	results := make([]model.Section, len(sections))

	limit := g.cfg.MaxThreadNum
	if limit <= 0 || limit > len(sections) {
		limit = len(sections)
	}
	if limit <= 0 {
		limit = 1
	}

	g2, gCtx := errgroup.WithContext(ctx)
	g2.SetLimit(limit)

	for i, node := range sections {
		g2.Go(func() error {
			results[i] = g.draftSection(gCtx, topic, node, index)
			return nil
		})
	}
	_ = g2.Wait()

	return &model.Article{Sections: results}, nil
}

// selectSections returns every top-level heading not in skippedHeadings.
func selectSections(o *model.Outline) []*model.OutlineNode {
	var out []*model.OutlineNode
	for _, n := range o.TopLevel() {
		if skippedHeadings[strings.ToLower(strings.TrimSpace(n.Heading))] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (g *Generator) draftSection(ctx context.Context, topic string, node *model.OutlineNode, index *evidenceIndex) model.Section {
	query := sectionQuery(node)

	k := g.cfg.RetrieveTopK
	if k <= 0 {
		k = 3
	}
	evidence := index.topK(ctx, query, k)

	if len(evidence) == 0 {
		return model.Section{Heading: node.Heading, Level: node.Level, Body: headingLine(node)}
	}

	prompt := fmt.Sprintf(sectionDraftPrompt, topic, node.Heading, formatEvidence(evidence), node.Level)
	body, err := g.articleGen.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("article: section draft failed", zap.String("heading", node.Heading), zap.Error(err))
		return model.Section{Heading: node.Heading, Level: node.Level, Body: headingLine(node)}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		body = headingLine(node)
	}

	remapped := remapCitations(body, evidence, index.tbl)

	return model.Section{Heading: node.Heading, Level: node.Level, Body: remapped}
}

func headingLine(n *model.OutlineNode) string {
	return strings.Repeat("#", n.Level) + " " + n.Heading
}

func sectionQuery(n *model.OutlineNode) string {
	parts := []string{n.Heading}
	for _, c := range n.Children {
		parts = append(parts, c.Heading)
	}
	return strings.Join(parts, " ")
}

func formatEvidence(evidence []scoredPassage) string {
	var b strings.Builder
	for i, e := range evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		snippet := strings.Join(e.passage.Snippets, "\n")
		fmt.Fprintf(&b, "[%d] %s", i+1, truncateWords(snippet, evidenceWordBudget/len(evidence)))
	}
	return b.String()
}

func truncateWords(s string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}

// scoredPassage pairs a curated passage with its local cosine similarity
// score against a section query.
type scoredPassage struct {
	passage model.Passage
	score   float64
}

// evidenceIndex embeds every curated passage once and answers local
// similarity queries against it — this is explicitly not a Retriever call;
// it searches only within the already-curated InformationTable.
type evidenceIndex struct {
	tbl      *model.InformationTable
	embedder embed.Embedder
	vectors  map[string][]float32
}

func newEvidenceIndex(ctx context.Context, embedder embed.Embedder, table *model.InformationTable) *evidenceIndex {
	idx := &evidenceIndex{tbl: table, embedder: embedder, vectors: make(map[string][]float32)}
	if table == nil || embedder == nil {
		return idx
	}
	for url, p := range table.URLToInfo {
		text := strings.Join(p.Snippets, "\n")
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			zap.L().Warn("article: failed to embed curated passage", zap.String("url", url), zap.Error(err))
			continue
		}
		idx.vectors[url] = vec
	}
	return idx
}

func (idx *evidenceIndex) topK(ctx context.Context, query string, k int) []scoredPassage {
	if idx.tbl == nil || len(idx.vectors) == 0 {
		return nil
	}

	qvec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		zap.L().Warn("article: failed to embed section query", zap.Error(err))
		return nil
	}

	var scored []scoredPassage
	for url, vec := range idx.vectors {
		p := idx.tbl.URLToInfo[url]
		if p == nil {
			continue
		}
		scored = append(scored, scoredPassage{passage: *p, score: cosineSimilarity(qvec, vec)})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
