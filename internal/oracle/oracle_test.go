package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
	last  llm.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.reply, Model: "fake-1"}, nil
}

type countingObserver map[string]int

func (c countingObserver) OracleCall(kind, result string) {
	c[kind+"/"+result]++
}

func TestOracle_Extract(t *testing.T) {
	p := &fakeProvider{reply: `{"fact": "Council approves park renovation.", "confidence": 91, "newsworthy": true, "threshold_met": "$1M+ cost/investment"}`}
	o := New(p, nil, nil, Options{MaxTokens: 300}, nil)

	c, err := o.Extract(context.Background(), "Shocking vote: council finally approves park")
	require.NoError(t, err)
	assert.Equal(t, "Council approves park renovation.", c.Fact)
	assert.Equal(t, 91, c.Confidence)
	assert.True(t, strings.HasSuffix(p.last.Prompt, "Shocking vote: council finally approves park"))
	assert.Equal(t, 300, p.last.MaxTokens)
	assert.True(t, p.last.JSON, "extraction asks for a JSON reply")
}

func TestOracle_ExtractMalformedIsSkip(t *testing.T) {
	obs := countingObserver{}
	o := New(&fakeProvider{reply: "sorry"}, nil, obs, Options{}, nil)

	c, err := o.Extract(context.Background(), "headline")
	require.NoError(t, err)
	assert.True(t, c.IsSkip())
	assert.Equal(t, 1, obs["extract/malformed"])
}

func TestOracle_ExtractTransportError(t *testing.T) {
	o := New(&fakeProvider{err: errors.New("connection refused")}, nil, nil, Options{}, nil)

	c, err := o.Extract(context.Background(), "headline")
	require.Error(t, err)
	assert.True(t, c.IsSkip())
}

func TestOracle_GroupMatch(t *testing.T) {
	p := &fakeProvider{reply: "2, 1"}
	o := New(p, nil, nil, Options{}, nil)

	idx, err := o.GroupMatch(context.Background(), "fact", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)
	assert.Contains(t, p.last.Prompt, "1. a\n2. b\n3. c")
	assert.False(t, p.last.JSON)
}

func TestOracle_GroupMatchNoCandidates(t *testing.T) {
	p := &fakeProvider{reply: "1"}
	o := New(p, nil, nil, Options{}, nil)

	idx, err := o.GroupMatch(context.Background(), "fact", nil)
	require.NoError(t, err)
	assert.Empty(t, idx)
	assert.Equal(t, 0, p.calls)
}

func TestOracle_GroupMatchMalformed(t *testing.T) {
	o := New(&fakeProvider{reply: "the second one"}, nil, nil, Options{}, nil)

	idx, err := o.GroupMatch(context.Background(), "fact", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestOracle_SameEventAny(t *testing.T) {
	o := New(&fakeProvider{reply: "YES"}, nil, nil, Options{}, nil)
	same, err := o.SameEventAny(context.Background(), "fact", []string{"a"})
	require.NoError(t, err)
	assert.True(t, same)

	o = New(&fakeProvider{reply: "unsure"}, nil, nil, Options{}, nil)
	same, err = o.SameEventAny(context.Background(), "fact", []string{"a"})
	require.NoError(t, err)
	assert.False(t, same)

	o = New(&fakeProvider{err: errors.New("timeout")}, nil, nil, Options{}, nil)
	_, err = o.SameEventAny(context.Background(), "fact", []string{"a"})
	assert.Error(t, err)
}

func TestOracle_CachesReplies(t *testing.T) {
	p := &fakeProvider{reply: "NO"}
	obs := countingObserver{}
	o := New(p, cache.NewMemoryCache(time.Hour, time.Hour), obs, Options{Model: "m", CacheTTL: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		same, err := o.SameEventAny(ctx, "fact", []string{"a"})
		require.NoError(t, err)
		assert.False(t, same)
	}
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, obs["same_event/ok"])
	assert.Equal(t, 2, obs["same_event/cached"])

	_, err := o.SameEventAny(ctx, "another fact", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestOracle_ErrorsAreNotCached(t *testing.T) {
	p := &fakeProvider{err: errors.New("503")}
	o := New(p, cache.NewMemoryCache(time.Hour, time.Hour), nil, Options{}, nil)
	ctx := context.Background()

	_, _ = o.GroupMatch(ctx, "fact", []string{"a"})
	p.err = nil
	p.reply = "1"
	idx, err := o.GroupMatch(ctx, "fact", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idx)
	assert.Equal(t, 2, p.calls)
}
