package chunker

import (
	"fmt"

	"github.com/google/uuid"

	"docrag/internal/domain"
)

// WindowChunker splits text into fixed-size character windows with overlap.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// NewWindowChunker validates the window up front so a bad config fails at startup.
func NewWindowChunker(chunkSize, overlap int) (*WindowChunker, error) {
	if err := validateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return Split(document, c.chunkSize, c.overlap)
}

// Split windows document text into slices of chunkSize runes, advancing the
// start by chunkSize-overlap until it reaches the end of the text. Every slice
// carries the document metadata unchanged.
func Split(document domain.Document, chunkSize, overlap int) ([]domain.Chunk, error) {
	if err := validateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	runes := []rune(document.Text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := chunkSize - overlap
	chunks := make([]domain.Chunk, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, domain.Chunk{
			ID:       uuid.NewString(),
			Text:     string(runes[start:end]),
			Metadata: document.Metadata,
		})
	}
	return chunks, nil
}

func validateWindow(chunkSize, overlap int) error {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: chunk_size=%d overlap=%d", domain.ErrInvalidWindow, chunkSize, overlap)
	}
	return nil
}
