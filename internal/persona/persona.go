// Package persona implements Stage 1 (PersonaGenerator): related-topic
// discovery followed by persona synthesis, prefixed with the fixed
// "Basic fact writer" persona every run carries.
package persona

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/webfetch"
)

const relatedTopicsPrompt = `I'm writing an analysis report about %s. Please list up to 5 URLs of Wikipedia-like pages about closely related topics or companies, one per line. Respond with only the URLs, no commentary.`

const personaSynthesisPrompt = `I'm writing an analysis report about %s. I've found the following tables of contents from related pages:

%s

Please identify a diverse group of editors who would contribute to this report, each focused on a distinct aspect of the topic. Respond as a numbered list, one editor per line, each formatted exactly as "short summary: description".`

var numberedLinePattern = regexp.MustCompile(`^\s*\d+[.):]\s*(.+)$`)

// TOCFetcher fetches a page's table of contents. Satisfied by
// *webfetch.Fetcher; an interface here so tests can stub fetch failures.
type TOCFetcher interface {
	FetchTOC(ctx context.Context, url string) (string, error)
}

// Generator produces the ordered persona list for a topic.
type Generator struct {
	questionAsker llm.LanguageModel
	fetcher       TOCFetcher
	maxPerspective int
}

// Config configures persona generation limits. MaxPerspective=0 is a
// valid, deliberate value (only the Basic fact writer is emitted) — the
// pipeline-wide default of 3 is applied by internal/config, not here.
type Config struct {
	// MaxPerspective caps the number of LM-generated personas, excluding
	// the always-present Basic fact writer.
	MaxPerspective int
}

// NewGenerator constructs a Generator. questionAsker must be the
// RoleQuestionAsker language model.
func NewGenerator(questionAsker llm.LanguageModel, fetcher TOCFetcher, cfg Config) *Generator {
	if cfg.MaxPerspective < 0 {
		cfg.MaxPerspective = 0
	}
	return &Generator{
		questionAsker:  questionAsker,
		fetcher:        fetcher,
		maxPerspective: cfg.MaxPerspective,
	}
}

// Generate runs Stage 1 for topic, returning 1..maxPerspective+1 personas
// with model.BasicFactWriter always first.
func (g *Generator) Generate(ctx context.Context, topic string) ([]model.Persona, error) {
	tocs := g.discoverRelatedTopics(ctx, topic)

	personas := []model.Persona{model.BasicFactWriter}
	if g.maxPerspective == 0 {
		return personas, nil
	}

	synthesized, err := g.synthesizePersonas(ctx, topic, tocs)
	if err != nil {
		return nil, err
	}

	personas = append(personas, synthesized...)
	return personas, nil
}

// discoverRelatedTopics asks questionAsker for related URLs and fetches
// each page's table of contents, ignoring individual fetch failures.
func (g *Generator) discoverRelatedTopics(ctx context.Context, topic string) []string {
	resp, err := g.questionAsker.Complete(ctx, fmt.Sprintf(relatedTopicsPrompt, topic))
	if err != nil || resp == "" {
		zap.L().Warn("persona: related-topic discovery produced no URLs", zap.Error(err))
		return nil
	}

	var tocs []string
	for _, u := range parseURLs(resp) {
		toc, err := g.fetcher.FetchTOC(ctx, u)
		if err != nil {
			zap.L().Debug("persona: ignoring ToC fetch failure", zap.String("url", u), zap.Error(err))
			continue
		}
		if toc != "" {
			tocs = append(tocs, toc)
		}
	}
	return tocs
}

func (g *Generator) synthesizePersonas(ctx context.Context, topic string, tocs []string) ([]model.Persona, error) {
	prompt := fmt.Sprintf(personaSynthesisPrompt, topic, strings.Join(tocs, "\n\n"))
	resp, err := g.questionAsker.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if resp == "" {
		return nil, nil
	}

	personas := parsePersonas(resp)
	if len(personas) > g.maxPerspective {
		personas = personas[:g.maxPerspective]
	}
	return personas, nil
}

func parseURLs(text string) []string {
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := numberedLinePattern.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[1])
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	return urls
}

func parsePersonas(text string) []model.Persona {
	var personas []model.Persona
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := numberedLinePattern.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[1])
		}

		name, description, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		description = strings.TrimSpace(description)
		if name == "" || description == "" {
			continue
		}
		personas = append(personas, model.Persona{Name: name, Description: description})
	}
	return personas
}

var _ TOCFetcher = (*webfetch.Fetcher)(nil)
