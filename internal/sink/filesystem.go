package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FilesystemSink writes each run's artifacts under RunsDir/<jobID>/ as
// the teacher writes CSV/JSON output files from cmd (os.WriteFile,
// 0o644), one file per artifact rather than a single blob, so a partial
// write leaves the rest of the run directory inspectable.
type FilesystemSink struct {
	RunsDir string
}

// NewFilesystemSink constructs a FilesystemSink rooted at runsDir.
func NewFilesystemSink(runsDir string) *FilesystemSink {
	return &FilesystemSink{RunsDir: runsDir}
}

// Write creates RunsDir/jobID (and RunsDir, if absent) and writes every
// artifact field as its own file, empty fields included.
func (s *FilesystemSink) Write(ctx context.Context, jobID string, artifacts Artifacts) error {
	dir := filepath.Join(s.RunsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: mkdir %s", dir)
	}

	writes := []struct {
		name string
		data []byte
	}{
		{"polished_article.md", []byte(artifacts.PolishedArticle)},
		{"draft_article.md", []byte(artifacts.DraftArticle)},
		{"outline.md", []byte(artifacts.Outline)},
		{"draft_outline.md", []byte(artifacts.DraftOutline)},
	}
	for _, w := range writes {
		if err := os.WriteFile(filepath.Join(dir, w.name), w.data, 0o644); err != nil {
			return eris.Wrapf(err, "sink: write %s", w.name)
		}
	}

	jsonWrites := []struct {
		name string
		v    any
	}{
		{"conversation_log.json", artifacts.ConversationLog},
		{"url_to_info.json", artifacts.URLToInfo},
		{"run_config.json", artifacts.RunConfig},
	}
	for _, w := range jsonWrites {
		b, err := json.MarshalIndent(w.v, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "sink: marshal %s", w.name)
		}
		if err := os.WriteFile(filepath.Join(dir, w.name), b, 0o644); err != nil {
			return eris.Wrapf(err, "sink: write %s", w.name)
		}
	}

	if err := s.writeJSONL(dir, artifacts.LLMCallHistory); err != nil {
		return err
	}

	return nil
}

func (s *FilesystemSink) writeJSONL(dir string, records []LLMCallRecord) error {
	f, err := os.Create(filepath.Join(dir, "llm_call_history.jsonl"))
	if err != nil {
		return eris.Wrap(err, "sink: create llm_call_history.jsonl")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "sink: encode llm call record")
		}
	}
	return nil
}
