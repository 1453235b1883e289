// Package embed provides the query embedding provider used by the
// InternalRetriever. The same model and output dimension must have been
// used to populate the KnowledgeStore's embedding column; Embedder.Dimension
// exists so callers can assert that at startup.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Embedder turns free-text queries into vectors comparable against the
// KnowledgeStore's stored embeddings via cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// GeminiEmbedder wraps the Gemini embedding API with a fixed output
// dimension via Matryoshka truncation, matching whatever dimension the
// ingestion pipeline embedded the corpus with.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

// GeminiEmbedderConfig configures a GeminiEmbedder.
type GeminiEmbedderConfig struct {
	APIKey    string
	Model     string // defaults to "gemini-embedding-001"
	Dimension int32  // defaults to 768
}

const (
	defaultEmbeddingModel     = "gemini-embedding-001"
	defaultEmbeddingDimension = int32(768)
)

// NewGeminiEmbedder constructs a GeminiEmbedder from cfg.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiEmbedderConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("embed: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = defaultEmbeddingDimension
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: create gemini client")
	}

	return &GeminiEmbedder{client: client, model: model, dimension: dim}, nil
}

// Dimension returns the configured output dimension.
func (e *GeminiEmbedder) Dimension() int {
	return int(e.dimension)
}

// Embed returns a single embedding vector for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dim := e.dimension
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: generate embedding")
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, eris.New("embed: no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}
