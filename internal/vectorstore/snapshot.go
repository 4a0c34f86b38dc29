package vectorstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docrag/internal/domain"
)

// Snapshot layout under a tenant location:
//
//	CURRENT              name of the live generation directory
//	gen-<uuid>/vectors.gob
//	gen-<uuid>/chunks.json
//
// A save writes a new generation and then renames CURRENT over the old pointer,
// so both artifacts are replaced together or not at all.
const (
	currentFile      = "CURRENT"
	vectorsFile      = "vectors.gob"
	chunksFile       = "chunks.json"
	generationPrefix = "gen-"
)

// ErrNoSnapshot is returned by LoadIndex when no complete snapshot exists.
var ErrNoSnapshot = errors.New("no index snapshot")

var newGeneration = func() string { return generationPrefix + uuid.NewString() }

type vectorBlob struct {
	TenantID string
	Dim      int
	Vectors  [][]float32
}

// Save writes the index to location. On failure the previous snapshot stays live.
func (x *Index) Save(location string) error {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return &domain.StorageError{Op: "save", Path: location, Err: err}
	}
	gen := newGeneration()
	genDir := filepath.Join(location, gen)
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return &domain.StorageError{Op: "save", Path: genDir, Err: err}
	}
	if err := x.writeGeneration(genDir); err != nil {
		_ = os.RemoveAll(genDir)
		return &domain.StorageError{Op: "save", Path: genDir, Err: err}
	}
	currentPath := filepath.Join(location, currentFile)
	if err := writeFileAtomic(currentPath, []byte(gen+"\n")); err != nil {
		_ = os.RemoveAll(genDir)
		return &domain.StorageError{Op: "save", Path: currentPath, Err: err}
	}
	removeStaleGenerations(location, gen)
	return nil
}

func (x *Index) writeGeneration(dir string) error {
	blob := vectorBlob{TenantID: x.tenantID, Dim: x.dim, Vectors: x.vectors}
	if err := writeFileSynced(filepath.Join(dir, vectorsFile), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(&blob)
	}); err != nil {
		return err
	}
	chunks := x.chunks
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return writeFileSynced(filepath.Join(dir, chunksFile), func(f *os.File) error {
		return json.NewEncoder(f).Encode(chunks)
	})
}

// LoadIndex reads the live snapshot under location. A missing pointer or a
// generation missing either artifact yields ErrNoSnapshot.
func LoadIndex(location string) (*Index, error) {
	raw, err := os.ReadFile(filepath.Join(location, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, &domain.StorageError{Op: "load", Path: location, Err: err}
	}
	gen := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(gen, generationPrefix) || strings.ContainsAny(gen, `/\`) {
		return nil, &domain.StorageError{Op: "load", Path: location, Err: fmt.Errorf("bad generation pointer %q", gen)}
	}
	genDir := filepath.Join(location, gen)

	vectorsData, verr := os.ReadFile(filepath.Join(genDir, vectorsFile))
	chunksData, cerr := os.ReadFile(filepath.Join(genDir, chunksFile))
	if errors.Is(verr, os.ErrNotExist) || errors.Is(cerr, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: incomplete snapshot in %s", ErrNoSnapshot, genDir)
	}
	if err := errors.Join(verr, cerr); err != nil {
		return nil, &domain.StorageError{Op: "load", Path: genDir, Err: err}
	}

	var blob vectorBlob
	if err := gob.NewDecoder(bytes.NewReader(vectorsData)).Decode(&blob); err != nil {
		return nil, &domain.StorageError{Op: "load", Path: genDir, Err: fmt.Errorf("decode vectors: %w", err)}
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(chunksData, &chunks); err != nil {
		return nil, &domain.StorageError{Op: "load", Path: genDir, Err: fmt.Errorf("decode chunks: %w", err)}
	}
	idx, err := NewIndex(blob.TenantID, blob.Dim)
	if err != nil {
		return nil, &domain.StorageError{Op: "load", Path: genDir, Err: err}
	}
	if err := idx.Add(blob.Vectors, chunks); err != nil {
		return nil, &domain.StorageError{Op: "load", Path: genDir, Err: err}
	}
	return idx, nil
}

func writeFileSynced(path string, write func(f *os.File) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := writeFileSynced(tmp, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func removeStaleGenerations(location, keep string) {
	entries, err := os.ReadDir(location)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) && e.Name() != keep {
			_ = os.RemoveAll(filepath.Join(location, e.Name()))
		}
	}
}
