package retrieval

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

// Reason explains why retrieval refused to hand context to generation.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonNoDocumentsIndexed       Reason = "no_documents_indexed"
	ReasonBelowSimilarityThreshold Reason = "below_similarity_threshold"
	ReasonLowAverageConfidence     Reason = "low_average_confidence"
)

// Options tunes one retrieval call.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	ConfidenceThreshold float64
	// DocID, when set, keeps only chunks of that document after the confidence gate.
	DocID string
}

// Outcome is the result of the retrieval cascade. A refusal is not an error.
type Outcome struct {
	Question           string
	NormalizedQuestion string
	Chunks             []domain.Chunk
	Scores             []float64
	Refused            bool
	Reason             Reason
}

// Pipeline runs normalize, embed, search, dedup, threshold, confidence gate
// and doc filter, in that order.
type Pipeline struct {
	embedder   domain.Embedder
	store      vectorstore.Storage
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewPipeline wires a retrieval pipeline. A nil normalizer uses the default rules.
func NewPipeline(embedder domain.Embedder, store vectorstore.Storage, normalizer *Normalizer, logger *slog.Logger) *Pipeline {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{embedder: embedder, store: store, normalizer: normalizer, logger: logger}
}

// Retrieve returns the context chunks for question, or a refusal with its reason.
// Embedding failures are UpstreamErrors; storage and dimension errors pass through.
func (p *Pipeline) Retrieve(ctx context.Context, tenantID, question string, opts Options) (Outcome, error) {
	out := Outcome{Question: question, NormalizedQuestion: p.normalizer.Normalize(question)}

	vec, err := p.embedder.Embed(ctx, out.NormalizedQuestion)
	if err != nil {
		return Outcome{}, domain.Upstream("embedding", err)
	}

	results, found, err := p.store.Search(ctx, tenantID, vec, opts.TopK)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return p.refuse(tenantID, out, ReasonNoDocumentsIndexed), nil
	}

	results = Deduplicate(results)
	p.logMetrics(tenantID, question, results, opts.SimilarityThreshold)

	results = Threshold(results, opts.SimilarityThreshold)
	if reason := Gate(results, opts.ConfidenceThreshold); reason != ReasonNone {
		return p.refuse(tenantID, out, reason), nil
	}
	if opts.DocID != "" {
		results = FilterDoc(results, opts.DocID)
	}

	out.Chunks = make([]domain.Chunk, len(results))
	out.Scores = make([]float64, len(results))
	for i, r := range results {
		out.Chunks[i] = r.Chunk
		out.Scores[i] = r.Score
	}
	return out, nil
}

// Deduplicate keeps the best scoring result per (DocID, Page), ordered by
// descending score. Equal scores keep their input order.
func Deduplicate(results []domain.QueryResult) []domain.QueryResult {
	type key struct {
		doc  string
		page int
	}
	best := make(map[key]int, len(results))
	out := make([]domain.QueryResult, 0, len(results))
	for _, r := range results {
		k := key{r.Chunk.Metadata.DocID, r.Chunk.Metadata.Page}
		if i, ok := best[k]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b domain.QueryResult) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// Threshold drops results scoring below minScore.
func Threshold(results []domain.QueryResult, minScore float64) []domain.QueryResult {
	out := make([]domain.QueryResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// Gate refuses an empty result set, or one whose mean score is below confidence.
func Gate(results []domain.QueryResult, confidence float64) Reason {
	if len(results) == 0 {
		return ReasonBelowSimilarityThreshold
	}
	if meanScore(results) < confidence {
		return ReasonLowAverageConfidence
	}
	return ReasonNone
}

// FilterDoc keeps results belonging to docID.
func FilterDoc(results []domain.QueryResult, docID string) []domain.QueryResult {
	out := make([]domain.QueryResult, 0, len(results))
	for _, r := range results {
		if r.Chunk.Metadata.DocID == docID {
			out = append(out, r)
		}
	}
	return out
}

func (p *Pipeline) refuse(tenantID string, out Outcome, reason Reason) Outcome {
	out.Refused = true
	out.Reason = reason
	out.Chunks = nil
	out.Scores = nil
	p.logger.Info("retrieval refused", "tenant", tenantID, "question", out.Question, "reason", string(reason))
	return out
}

func (p *Pipeline) logMetrics(tenantID, question string, results []domain.QueryResult, threshold float64) {
	attrs := []any{"tenant", tenantID, "question", question, "retrieved_chunks", len(results), "threshold", threshold}
	if len(results) > 0 {
		lo, hi := results[0].Score, results[0].Score
		passed := false
		for _, r := range results {
			lo = min(lo, r.Score)
			hi = max(hi, r.Score)
			passed = passed || r.Score >= threshold
		}
		attrs = append(attrs, "min_score", lo, "max_score", hi, "avg_score", meanScore(results), "passed_threshold", passed)
	} else {
		attrs = append(attrs, "passed_threshold", false)
	}
	p.logger.Info("retrieval metrics", attrs...)
}

func meanScore(results []domain.QueryResult) float64 {
	sum := 0.0
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}
