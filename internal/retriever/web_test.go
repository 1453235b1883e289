package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/pkg/perplexity"
)

type fakePerplexityClient struct {
	resp *perplexity.ChatCompletionResponse
	err  error
}

func (f *fakePerplexityClient) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return f.resp, f.err
}

func TestPerplexityWebRetriever_ReturnsSinglePassage(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "삼성전자는 1969년 설립되었다."}}},
	}}
	w := NewPerplexityWebRetriever(client)

	out, err := w.RetrieveWeb(context.Background(), "삼성전자 설립일", 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "삼성전자는 1969년 설립되었다.", out[0].Snippets[0])
}

func TestPerplexityWebRetriever_NoChoicesReturnsEmpty(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{}}
	w := NewPerplexityWebRetriever(client)

	out, err := w.RetrieveWeb(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPerplexityWebRetriever_ZeroKReturnsEmpty(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "x"}}},
	}}
	w := NewPerplexityWebRetriever(client)

	out, err := w.RetrieveWeb(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}
