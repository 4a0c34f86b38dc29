package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"

	"docrag/internal/domain"
)

// ErrEmptyTenant is returned for an empty tenant identifier.
var ErrEmptyTenant = errors.New("empty tenant id")

// Registry maps tenant ids to their indexes and owns exactly one lock per tenant.
// The lock guards loading, Add together with the Save that follows it, and Search.
//
// Slots are created under the registry mutex, so concurrent first requests for
// an unknown tenant always share one lock. Slots are never removed.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	tenants map[string]*tenantSlot
}

type tenantSlot struct {
	lock  chan struct{}
	index *Index
}

// NewRegistry creates a registry persisting tenant snapshots under dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, logger: logger, tenants: make(map[string]*tenantSlot)}
}

// Location is the snapshot directory of a tenant.
func (r *Registry) Location(tenantID string) string {
	return filepath.Join(r.dir, "tenant-"+url.PathEscape(tenantID))
}

// Get returns the tenant's index, loading it from its snapshot on first use.
// It returns (nil, nil) when the tenant has no documents yet.
// The returned index must only be searched or mutated through the Registry.
func (r *Registry) Get(ctx context.Context, tenantID string) (*Index, error) {
	s, err := r.acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer s.release()
	return r.loadLocked(tenantID, s)
}

// GetOrCreate is Get, but registers a fresh empty index of dim when the tenant has none.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string, dim int) (*Index, error) {
	s, err := r.acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer s.release()
	idx, _, err := r.getOrCreateLocked(tenantID, s, dim)
	return idx, err
}

// Add appends embedded chunks to the tenant's index and persists the result
// before releasing the tenant lock. A failed save rolls the in-memory append back.
func (r *Registry) Add(ctx context.Context, tenantID string, vectors [][]float32, chunks []domain.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrDimensionMismatch, len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	s, err := r.acquire(ctx, tenantID)
	if err != nil {
		return err
	}
	defer s.release()

	idx, created, err := r.getOrCreateLocked(tenantID, s, len(vectors[0]))
	if err != nil {
		return err
	}
	before := idx.Len()
	if err := idx.Add(vectors, chunks); err != nil {
		if created {
			s.index = nil
		}
		return err
	}
	if err := idx.Save(r.Location(tenantID)); err != nil {
		if created {
			s.index = nil
		} else {
			idx.truncate(before)
		}
		r.logger.Error("index save failed", "tenant", tenantID, "error", err)
		return err
	}
	r.logger.Info("index saved", "tenant", tenantID, "added", len(chunks), "chunks", idx.Len(), "dim", idx.Dimension())
	return nil
}

// Search runs an exact search under the tenant lock. found is false when the
// tenant has no index.
func (r *Registry) Search(ctx context.Context, tenantID string, query []float32, topK int) (results []domain.QueryResult, found bool, err error) {
	s, err := r.acquire(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	defer s.release()

	idx, err := r.loadLocked(tenantID, s)
	if err != nil || idx == nil {
		return nil, false, err
	}
	results, err = idx.Search(query, topK)
	if err != nil {
		return nil, true, err
	}
	return results, true, nil
}

// Evict drops the in-memory index of a tenant. Its snapshot is reloaded on next use.
func (r *Registry) Evict(ctx context.Context, tenantID string) error {
	s, err := r.acquire(ctx, tenantID)
	if err != nil {
		return err
	}
	defer s.release()
	s.index = nil
	return nil
}

func (r *Registry) slot(tenantID string) *tenantSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tenants[tenantID]
	if !ok {
		s = &tenantSlot{lock: make(chan struct{}, 1)}
		r.tenants[tenantID] = s
	}
	return s
}

func (r *Registry) acquire(ctx context.Context, tenantID string) (*tenantSlot, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenant
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.slot(tenantID)
	select {
	case s.lock <- struct{}{}:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *tenantSlot) release() { <-s.lock }

func (r *Registry) loadLocked(tenantID string, s *tenantSlot) (*Index, error) {
	if s.index != nil {
		return s.index, nil
	}
	location := r.Location(tenantID)
	idx, err := LoadIndex(location)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			if err != ErrNoSnapshot {
				r.logger.Warn("ignoring incomplete index snapshot", "tenant", tenantID, "error", err)
			}
			return nil, nil
		}
		return nil, err
	}
	r.logger.Debug("index loaded", "tenant", tenantID, "chunks", idx.Len(), "dim", idx.Dimension())
	s.index = idx
	return idx, nil
}

func (r *Registry) getOrCreateLocked(tenantID string, s *tenantSlot, dim int) (*Index, bool, error) {
	idx, err := r.loadLocked(tenantID, s)
	if err != nil {
		return nil, false, err
	}
	if idx != nil {
		return idx, false, nil
	}
	idx, err = NewIndex(tenantID, dim)
	if err != nil {
		return nil, false, err
	}
	s.index = idx
	return idx, true, nil
}
