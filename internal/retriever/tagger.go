package retriever

import (
	"fmt"

	"github.com/dart-insight/storm-report/internal/model"
)

// SourceTagger prepends a visible provenance header to each passage's
// content so the LLM reads attribution as text rather than inferring it
// from a scoring side-channel.
type SourceTagger struct{}

// NewSourceTagger returns a SourceTagger. It holds no state; a value is
// provided for symmetry with the other retrieval-pipeline stages and to
// leave room for future tag formats.
func NewSourceTagger() *SourceTagger {
	return &SourceTagger{}
}

// Tag prepends "[[Source: {company} business report (Report ID: {id})]]"
// to every snippet of every passage, using CompanyName/ReportID from the
// store join rather than embedded chunk metadata.
func (t *SourceTagger) Tag(passages []model.Passage) []model.Passage {
	out := make([]model.Passage, len(passages))
	for i, p := range passages {
		header := fmt.Sprintf("[[Source: %s business report (Report ID: %s)]]\n\n", p.CompanyName, p.ReportID)
		tagged := make([]string, len(p.Snippets))
		for j, s := range p.Snippets {
			tagged[j] = header + s
		}
		p.Snippets = tagged
		out[i] = p
	}
	return out
}
