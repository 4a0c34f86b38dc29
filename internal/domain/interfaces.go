package domain

import "context"

// Metadata is the provenance of a chunk: where its text came from.
type Metadata struct {
	SourceName string `json:"source"`
	Page       int    `json:"page"`
	DocID      string `json:"doc_id"`
}

// Document is one unit of extracted text, typically a single page of an uploaded file.
type Document struct {
	Text     string
	Metadata Metadata
}

// Chunk is a bounded slice of a document's text plus its provenance.
// Its embedding is held by the owning index at the same position.
type Chunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// QueryResult is a matching chunk with its cosine similarity to the query.
type QueryResult struct {
	Chunk Chunk
	Score float64
}

// Embedder converts free text into a fixed-length vector.
// Implementations must be deterministic for identical input.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer to a question using only the provided context passages.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question string, contexts []string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Extractor turns a raw file into per-page documents.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Document, error)
}

// RefusalText is the canonical answer when the context does not contain the answer.
const RefusalText = "I don't know based on the provided context."
