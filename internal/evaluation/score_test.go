package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docrag/internal/domain"
)

func c(text, source string) domain.Chunk {
	return domain.Chunk{Text: text, Metadata: domain.Metadata{SourceName: source, Page: 1}}
}

func TestKeywordCoverage(t *testing.T) {
	assert.InDelta(t, 1.0, KeywordCoverage("Retrieval Augmented Generation", []string{"retrieval", "GENERATION"}), 1e-9)
	assert.InDelta(t, 0.5, KeywordCoverage("retrieval only", []string{"retrieval", "generation"}), 1e-9)
	assert.Zero(t, KeywordCoverage("anything", nil))
}

func TestScoreRetrieval(t *testing.T) {
	chunks := []domain.Chunk{c("RAG combines retrieval", "rag_notes.pdf"), c("with generation steps", "other.pdf")}

	got := ScoreRetrieval(chunks, []string{"retrieval", "generation", "vector"}, "RAG")
	assert.True(t, got.Passed)
	assert.InDelta(t, 0.67, got.KeywordScore, 1e-9)
	assert.True(t, got.SourceMatch)
	assert.Equal(t, 2, got.NumChunks)

	got = ScoreRetrieval(chunks, []string{"retrieval"}, "fastapi")
	assert.False(t, got.Passed)
	assert.False(t, got.SourceMatch)

	got = ScoreRetrieval(chunks, []string{"vector", "index", "retrieval"}, "rag")
	assert.False(t, got.Passed)
	assert.InDelta(t, 0.33, got.KeywordScore, 1e-9)

	got = ScoreRetrieval(nil, []string{"retrieval"}, "rag")
	assert.Equal(t, RetrievalScore{Reason: "no_chunks_retrieved"}, got)
}

func TestScoreFaithfulness(t *testing.T) {
	got := ScoreFaithfulness("The total is $450", "the invoice total $450")
	// "the", "total", "$450" of {the, total, is, $450}
	assert.True(t, got.Faithful)
	assert.InDelta(t, 0.75, got.OverlapScore, 1e-9)
	assert.Equal(t, []string{"$450", "the", "total"}, got.OverlapWordsSample)

	got = ScoreFaithfulness("completely unrelated words here", "invoice total: $450")
	assert.False(t, got.Faithful)
	assert.Zero(t, got.OverlapScore)

	assert.Equal(t, FaithfulnessScore{Reason: "empty_context"}, ScoreFaithfulness("answer", "   "))
	assert.Equal(t, FaithfulnessScore{Reason: "empty_answer"}, ScoreFaithfulness(" ", "context"))
}

func TestScoreFaithfulnessSampleCapped(t *testing.T) {
	text := "a b c d e f g h i j k l"
	got := ScoreFaithfulness(text, text)
	assert.InDelta(t, 1.0, got.OverlapScore, 1e-9)
	assert.Len(t, got.OverlapWordsSample, 10)
}

func TestHasRequiredSource(t *testing.T) {
	chunks := []domain.Chunk{c("x", "FastAPI_Docs.pdf")}
	assert.True(t, HasRequiredSource(chunks, nil))
	assert.True(t, HasRequiredSource(chunks, []string{"missing", "fastapi_docs"}))
	assert.False(t, HasRequiredSource(chunks, []string{"django"}))
	assert.False(t, HasRequiredSource(nil, []string{"fastapi"}))
}
