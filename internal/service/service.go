package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docrag/internal/answer"
	"docrag/internal/domain"
	"docrag/internal/retrieval"
	"docrag/internal/vectorstore"
)

// ReasonGeneratorRefused marks answers the generator itself declined.
const ReasonGeneratorRefused retrieval.Reason = "generator_refused"

// Deps are the collaborators a Service is wired from.
type Deps struct {
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Extractor domain.Extractor
	Store     vectorstore.Storage
	Generator domain.Generator
	Detector  answer.RefusalDetector
	// Normalizer rewrites questions before embedding. Nil uses the default phrases.
	Normalizer *retrieval.Normalizer
}

// QueryOptions narrows one query. Zero values fall back to the service defaults.
type QueryOptions struct {
	TopK  int
	DocID string
}

// Response is the answer to a question with the sources backing it.
// Sources is empty whenever Refused is set.
type Response struct {
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Sources  []domain.Metadata `json:"sources"`
	Refused  bool              `json:"refused"`
	Reason   retrieval.Reason  `json:"reason,omitempty"`
}

// IngestReport summarizes one ingestion.
type IngestReport struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	DocIDs    []string `json:"doc_ids"`
}

// Service ingests documents into tenant indexes and answers questions from them.
type Service struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	extractor domain.Extractor
	store     vectorstore.Storage
	retriever *retrieval.Pipeline
	answerer  *answer.Pipeline
	defaults  retrieval.Options
	logger    *slog.Logger
}

// New wires a Service. defaults supplies TopK and both thresholds for queries.
func New(deps Deps, defaults retrieval.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		store:     deps.Store,
		retriever: retrieval.NewPipeline(deps.Embedder, deps.Store, deps.Normalizer, logger),
		answerer:  answer.NewPipeline(deps.Generator, deps.Detector, logger),
		defaults:  defaults,
		logger:    logger,
	}
}

// Retriever exposes the retrieval pipeline, e.g. for evaluation.
func (s *Service) Retriever() *retrieval.Pipeline { return s.retriever }

// Answerer exposes the answer pipeline, e.g. for evaluation.
func (s *Service) Answerer() *answer.Pipeline { return s.answerer }

// Defaults returns the retrieval options queries start from.
func (s *Service) Defaults() retrieval.Options { return s.defaults }

// Ingest chunks and embeds docs and appends them to the tenant's index in one
// atomic add. It returns ErrNoText when the documents yield no chunks.
func (s *Service) Ingest(ctx context.Context, tenantID string, docs []domain.Document) (IngestReport, error) {
	var chunks []domain.Chunk
	var docIDs []string
	seen := make(map[string]struct{})
	for _, d := range docs {
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return IngestReport{}, fmt.Errorf("chunk %s page %d: %w", d.Metadata.SourceName, d.Metadata.Page, err)
		}
		chunks = append(chunks, cs...)
		if _, ok := seen[d.Metadata.DocID]; !ok && len(cs) > 0 {
			seen[d.Metadata.DocID] = struct{}{}
			docIDs = append(docIDs, d.Metadata.DocID)
		}
	}
	if len(chunks) == 0 {
		return IngestReport{}, domain.ErrNoText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Error("embedding failed", "tenant", tenantID, "embedder", s.embedder.Name(), "error", err)
		return IngestReport{}, domain.Upstream("embedding", err)
	}
	if err := s.store.Add(ctx, tenantID, vectors, chunks); err != nil {
		s.logger.Error("index add failed", "tenant", tenantID, "error", err)
		return IngestReport{}, err
	}

	report := IngestReport{Documents: len(docIDs), Chunks: len(chunks), DocIDs: docIDs}
	s.logger.Info("documents ingested", "tenant", tenantID, "documents", report.Documents, "chunks", report.Chunks)
	return report, nil
}

// IngestFiles extracts every path and ingests the resulting pages together.
// Unsupported files fail the whole call before anything is indexed.
func (s *Service) IngestFiles(ctx context.Context, tenantID string, paths ...string) (IngestReport, error) {
	if s.extractor == nil {
		return IngestReport{}, errors.New("no extractor configured")
	}
	var docs []domain.Document
	for _, p := range paths {
		pages, err := s.extractor.Extract(ctx, p)
		if err != nil {
			return IngestReport{}, fmt.Errorf("extract %s: %w", p, err)
		}
		docs = append(docs, pages...)
	}
	return s.Ingest(ctx, tenantID, docs)
}

// Query answers question from the tenant's documents. Refusals are returned
// as responses with Refused set; only real failures are errors.
func (s *Service) Query(ctx context.Context, tenantID, question string, opts QueryOptions) (Response, error) {
	ro := s.defaults
	if opts.TopK > 0 {
		ro.TopK = opts.TopK
	}
	ro.DocID = opts.DocID

	out, err := s.retriever.Retrieve(ctx, tenantID, question, ro)
	if err != nil {
		s.logger.Error("retrieval failed", "tenant", tenantID, "error", err)
		return Response{}, err
	}
	if out.Refused {
		return Response{
			Question: question,
			Answer:   domain.RefusalText,
			Sources:  []domain.Metadata{},
			Refused:  true,
			Reason:   out.Reason,
		}, nil
	}

	res, err := s.answerer.Answer(ctx, tenantID, question, out.Chunks)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Question: question, Answer: res.Text, Sources: res.Sources, Refused: res.Refused}
	switch {
	case res.Refused && len(out.Chunks) == 0:
		// the doc filter removed every chunk that passed the gate
		resp.Reason = retrieval.ReasonBelowSimilarityThreshold
	case res.Refused:
		resp.Reason = ReasonGeneratorRefused
	}
	return resp, nil
}
