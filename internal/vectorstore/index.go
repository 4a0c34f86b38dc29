package vectorstore

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"docrag/internal/domain"
)

const defaultTopK = 5

// Index is one tenant's exact nearest-neighbor index using brute-force cosine similarity.
// chunks[i] belongs to vectors[i]; the two are only ever appended together.
//
// Index is not safe for concurrent use. Registry serializes all access per tenant.
type Index struct {
	tenantID string
	dim      int
	chunks   []domain.Chunk
	vectors  [][]float32
	norms    []float64
}

// NewIndex allocates an empty index fixed to dim.
func NewIndex(tenantID string, dim int) (*Index, error) {
	if dim <= 0 {
		return nil, errors.New("invalid dimension")
	}
	return &Index{tenantID: tenantID, dim: dim}, nil
}

func (x *Index) TenantID() string { return x.tenantID }

func (x *Index) Dimension() int { return x.dim }

func (x *Index) Len() int { return len(x.chunks) }

// Add appends vectors and chunks in lock-step. Nothing is inserted unless every
// vector matches the index dimension and the counts agree.
func (x *Index) Add(vectors [][]float32, chunks []domain.Chunk) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrDimensionMismatch, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", domain.ErrDimensionMismatch, i, len(v), x.dim)
		}
	}
	for i, v := range vectors {
		cp := append([]float32(nil), v...)
		x.vectors = append(x.vectors, cp)
		x.norms = append(x.norms, norm(cp))
		x.chunks = append(x.chunks, chunks[i])
	}
	return nil
}

// Search returns up to topK chunks by descending cosine similarity.
// Equal scores keep insertion order. An empty index returns an empty result
// for any query.
func (x *Index) Search(query []float32, topK int) ([]domain.QueryResult, error) {
	if len(x.vectors) == 0 {
		return []domain.QueryResult{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), x.dim)
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	qn := norm(query)
	scores := make([]float64, len(x.vectors))
	for i := range x.vectors {
		scores[i] = cosine(query, qn, x.vectors[i], x.norms[i])
	}
	idxs := argsortDesc(scores)
	topK = min(topK, len(idxs))
	results := make([]domain.QueryResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.QueryResult{Chunk: x.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// truncate drops everything after the first n entries. Used to undo an Add whose snapshot failed.
func (x *Index) truncate(n int) {
	if n < 0 || n >= len(x.chunks) {
		return
	}
	clear(x.chunks[n:])
	clear(x.vectors[n:])
	x.chunks = x.chunks[:n]
	x.vectors = x.vectors[:n]
	x.norms = x.norms[:n]
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum / (an * bn)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	slices.SortStableFunc(idxs, func(a, b int) int { return cmp.Compare(vals[b], vals[a]) })
	return idxs
}
