package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/internal/resilience"
	"github.com/dart-insight/storm-report/pkg/anthropic"
)

// fakeClient implements anthropic.Client with a scripted response/error
// sequence, consumed in FIFO order.
type fakeClient struct {
	responses []*anthropic.MessageResponse
	errs      []error
	calls     int
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := f.calls
	f.calls++
	var resp *anthropic.MessageResponse
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func (f *fakeClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	return nil, nil
}
func (f *fakeClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return nil, nil
}
func (f *fakeClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	return nil, nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestClaudeModel_Complete(t *testing.T) {
	client := &fakeClient{responses: []*anthropic.MessageResponse{textResponse("hello")}}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleOutlineGen, Model: "claude-haiku-4-5-20251001"})

	text, err := lm.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, int64(10), lm.Usage().InputTokens)
}

func TestClaudeModel_BlockedReturnsEmptyNotError(t *testing.T) {
	client := &fakeClient{responses: []*anthropic.MessageResponse{
		{Content: []anthropic.ContentBlock{}, StopReason: "refusal"},
	}}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleConvSimulator, Model: "claude-haiku-4-5-20251001"})

	text, err := lm.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestClaudeModel_EmptyContentReturnsEmptyNotError(t *testing.T) {
	client := &fakeClient{responses: []*anthropic.MessageResponse{
		{Content: []anthropic.ContentBlock{}},
	}}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleConvSimulator, Model: "claude-haiku-4-5-20251001"})

	text, err := lm.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestClaudeModel_RetriesTransientThenSucceeds(t *testing.T) {
	client := &fakeClient{
		responses: []*anthropic.MessageResponse{nil, textResponse("ok")},
		errs:      []error{resilience.NewTransientError(errFake("rate limit exceeded"), 429), nil},
	}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleArticleGen, Model: "claude-sonnet-4-5-20250929"})

	text, err := lm.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, client.calls)
}

func TestClaudeModel_ResetUsage(t *testing.T) {
	client := &fakeClient{responses: []*anthropic.MessageResponse{textResponse("x")}}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleQuestionAsker, Model: "m"})
	_, _ = lm.Complete(context.Background(), "p")
	require.NotZero(t, lm.Usage().InputTokens)
	lm.ResetUsage()
	assert.Zero(t, lm.Usage().InputTokens)
}

func TestClaudeModel_RecordsHistory(t *testing.T) {
	dir := t.TempDir()
	h, err := NewHistory(filepath.Join(dir, "calls.jsonl"))
	require.NoError(t, err)
	defer h.Close()

	client := &fakeClient{responses: []*anthropic.MessageResponse{textResponse("x")}}
	lm := NewClaudeModel(client, ClaudeConfig{Role: RoleArticlePolish, Model: "m", History: h})
	_, err = lm.Complete(context.Background(), "prompt text")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "calls.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "prompt text")
	assert.Contains(t, string(data), string(RoleArticlePolish))
}

func TestDefaultMaxTokens(t *testing.T) {
	assert.Equal(t, int64(4000), DefaultMaxTokens(RoleArticlePolish))
	assert.Equal(t, int64(500), DefaultMaxTokens(Role("unknown")))
}

func TestRoleSet_Get(t *testing.T) {
	set := RoleSet{RoleOutlineGen: NewStub("x")}
	assert.NotNil(t, set.Get(RoleOutlineGen))
}

func TestRoleSet_Get_PanicsOnMissing(t *testing.T) {
	set := RoleSet{}
	assert.Panics(t, func() { set.Get(RoleOutlineGen) })
}

type errFake string

func (e errFake) Error() string { return string(e) }
