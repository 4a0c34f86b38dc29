package retrieval

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

type fakeEmbedder struct {
	seen []string
	err  error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.seen = append(f.seen, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeStore struct {
	results []domain.QueryResult
	found   bool
	err     error
	topK    int
}

func (f *fakeStore) Add(context.Context, string, [][]float32, []domain.Chunk) error { return nil }
func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, topK int) ([]domain.QueryResult, bool, error) {
	f.topK = topK
	return f.results, f.found, f.err
}

func res(doc string, page int, score float64) domain.QueryResult {
	return domain.QueryResult{
		Chunk: domain.Chunk{ID: doc + "-chunk", Text: "text of " + doc, Metadata: domain.Metadata{SourceName: doc + ".pdf", Page: page, DocID: doc}},
		Score: score,
	}
}

func scores(results []domain.QueryResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

func TestDeduplicateKeepsBestPerPage(t *testing.T) {
	got := Deduplicate([]domain.QueryResult{res("A", 1, 0.9), res("A", 1, 0.95), res("A", 2, 0.4)})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Chunk.Metadata.Page)
	assert.InDelta(t, 0.95, got[0].Score, 1e-12)
	assert.Equal(t, 2, got[1].Chunk.Metadata.Page)
	assert.InDelta(t, 0.4, got[1].Score, 1e-12)
}

func TestDeduplicateKeepsDescendingOrder(t *testing.T) {
	got := Deduplicate([]domain.QueryResult{res("A", 1, 0.5), res("B", 1, 0.45), res("B", 1, 0.8), res("C", 3, 0.45)})
	assert.Equal(t, []float64{0.8, 0.5, 0.45}, scores(got))
	assert.Equal(t, "C", got[2].Chunk.Metadata.DocID)
}

func TestGate(t *testing.T) {
	assert.Equal(t, ReasonLowAverageConfidence, Gate([]domain.QueryResult{res("A", 1, 0.2), res("A", 2, 0.25)}, 0.5))
	assert.Equal(t, ReasonNone, Gate([]domain.QueryResult{res("A", 1, 0.6), res("A", 2, 0.7)}, 0.5))
	assert.Equal(t, ReasonBelowSimilarityThreshold, Gate(nil, 0.5))
}

func TestThreshold(t *testing.T) {
	got := Threshold([]domain.QueryResult{res("A", 1, 0.9), res("A", 2, 0.15), res("A", 3, 0.1)}, 0.15)
	assert.Equal(t, []float64{0.9, 0.15}, scores(got))
}

func TestRetrieveNoIndex(t *testing.T) {
	p := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil, nil)
	out, err := p.Retrieve(context.Background(), "acme", "what is the invoice total?", Options{TopK: 5})
	require.NoError(t, err)
	assert.True(t, out.Refused)
	assert.Equal(t, ReasonNoDocumentsIndexed, out.Reason)
	assert.Empty(t, out.Chunks)
}

func TestRetrieveEchoesRawQuestion(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{found: true, results: []domain.QueryResult{res("A", 1, 0.9)}}
	p := NewPipeline(emb, store, nil, nil)

	out, err := p.Retrieve(context.Background(), "acme", "Please summarize this", Options{TopK: 7, SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.False(t, out.Refused)
	assert.Equal(t, "Please summarize this", out.Question)
	assert.Equal(t, SummaryInstruction, out.NormalizedQuestion)
	assert.Equal(t, []string{SummaryInstruction}, emb.seen)
	assert.Equal(t, 7, store.topK)
	assert.Equal(t, []float64{0.9}, out.Scores)
}

func TestRetrieveRefusals(t *testing.T) {
	tests := []struct {
		name    string
		results []domain.QueryResult
		reason  Reason
	}{
		{"all below threshold", []domain.QueryResult{res("A", 1, 0.1), res("A", 2, 0.05)}, ReasonBelowSimilarityThreshold},
		{"empty index", []domain.QueryResult{}, ReasonBelowSimilarityThreshold},
		{"weak average", []domain.QueryResult{res("A", 1, 0.2), res("A", 2, 0.25)}, ReasonLowAverageConfidence},
		// one strong hit surrounded by weak ones
		{"lucky hit", []domain.QueryResult{res("A", 1, 0.9), res("B", 1, 0.2), res("C", 1, 0.2), res("D", 1, 0.2)}, ReasonLowAverageConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakeEmbedder{}, &fakeStore{found: true, results: tt.results}, nil, nil)
			out, err := p.Retrieve(context.Background(), "acme", "q", Options{TopK: 5, SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5})
			require.NoError(t, err)
			assert.True(t, out.Refused)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Nil(t, out.Chunks)
		})
	}
}

func TestRetrieveDedupsBeforeThreshold(t *testing.T) {
	// the duplicate weak hit of page 1 must not drag the mean down
	store := &fakeStore{found: true, results: []domain.QueryResult{res("A", 1, 0.6), res("A", 1, 0.2), res("A", 2, 0.5)}}
	p := NewPipeline(&fakeEmbedder{}, store, nil, nil)
	out, err := p.Retrieve(context.Background(), "acme", "q", Options{SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.False(t, out.Refused)
	assert.Equal(t, []float64{0.6, 0.5}, out.Scores)
}

func TestRetrieveDocFilterAfterGate(t *testing.T) {
	store := &fakeStore{found: true, results: []domain.QueryResult{res("A", 1, 0.9), res("B", 1, 0.2)}}
	p := NewPipeline(&fakeEmbedder{}, store, nil, nil)

	out, err := p.Retrieve(context.Background(), "acme", "q", Options{SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5, DocID: "B"})
	require.NoError(t, err)
	assert.False(t, out.Refused)
	require.Len(t, out.Chunks, 1)
	assert.Equal(t, "B", out.Chunks[0].Metadata.DocID)

	out, err = p.Retrieve(context.Background(), "acme", "q", Options{SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5, DocID: "missing"})
	require.NoError(t, err)
	assert.False(t, out.Refused)
	assert.Empty(t, out.Chunks)
}

func TestRetrieveEmbeddingFailureIsUpstream(t *testing.T) {
	cause := errors.New("connection refused")
	p := NewPipeline(&fakeEmbedder{err: cause}, &fakeStore{found: true}, nil, nil)
	_, err := p.Retrieve(context.Background(), "acme", "q", Options{})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, cause)

	var up *domain.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "embedding", up.Capability)
}

func TestRetrieveStoreErrorPassesThrough(t *testing.T) {
	p := NewPipeline(&fakeEmbedder{}, &fakeStore{err: domain.ErrDimensionMismatch}, nil, nil)
	_, err := p.Retrieve(context.Background(), "acme", "q", Options{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.NotErrorIs(t, err, domain.ErrUpstream)
}

func TestRetrieveLogsMetricsAndRefusal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := &fakeStore{found: true, results: []domain.QueryResult{res("A", 1, 0.2), res("A", 2, 0.1)}}
	p := NewPipeline(&fakeEmbedder{}, store, nil, logger)

	_, err := p.Retrieve(context.Background(), "acme", "q", Options{SimilarityThreshold: 0.15, ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	logs := buf.String()
	assert.Contains(t, logs, `msg="retrieval metrics"`)
	assert.Contains(t, logs, "retrieved_chunks=2")
	assert.Contains(t, logs, "passed_threshold=true")
	assert.Contains(t, logs, `msg="retrieval refused"`)
	assert.Contains(t, logs, "reason=low_average_confidence")
}
