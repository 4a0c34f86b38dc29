package extract

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docrag/internal/domain"
)

// ErrUnsupported is returned for file types the extractor cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// FileExtractor turns files on disk into per-page documents.
// PDFs yield one document per non-empty page; .txt and .md files yield a single page 1.
type FileExtractor struct{}

// New returns a FileExtractor.
func New() *FileExtractor { return &FileExtractor{} }

// Supported reports whether path has an extension the extractor reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// DocID derives a stable document id from the file's absolute path.
func DocID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return hashString(filepath.Clean(path))
}

// Extract reads path and returns its pages. A file without any text is ErrNoText.
func (e *FileExtractor) Extract(ctx context.Context, path string) ([]domain.Document, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	meta := domain.Metadata{SourceName: filepath.Base(path), DocID: DocID(path)}

	var docs []domain.Document
	var err error
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		docs, err = extractPDF(ctx, path, meta)
	} else {
		docs, err = extractText(path, meta)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoText, meta.SourceName)
	}
	return docs, nil
}

func extractText(path string, meta domain.Metadata) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	meta.Page = 1
	return []domain.Document{{Text: text, Metadata: meta}}, nil
}

func extractPDF(ctx context.Context, path string, meta domain.Metadata) (docs []domain.Document, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("read pdf %s: %v", meta.SourceName, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", meta.SourceName, err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf %s page %d: %w", meta.SourceName, i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		m := meta
		m.Page = i
		docs = append(docs, domain.Document{Text: text, Metadata: m})
	}
	return docs, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
