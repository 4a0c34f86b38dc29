package answer

import (
	"context"
	"log/slog"

	"docrag/internal/domain"
)

// Outcome values of the answer log record.
const (
	OutcomeAnswered = "answered"
	OutcomeRefused  = "refused"
)

// Result is the final answer payload. Sources is empty on refusal.
type Result struct {
	Text    string
	Refused bool
	Sources []domain.Metadata
}

// Pipeline turns retrieved chunks into an answer with sources.
type Pipeline struct {
	generator domain.Generator
	detector  RefusalDetector
	logger    *slog.Logger
}

// NewPipeline wires an answer pipeline.
func NewPipeline(generator domain.Generator, detector RefusalDetector, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{generator: generator, detector: detector, logger: logger}
}

// Answer generates an answer to question from chunks. With no chunks the
// canonical refusal is returned without calling the generator. Generation
// failures are UpstreamErrors and never yield a partial answer.
func (p *Pipeline) Answer(ctx context.Context, tenantID, question string, chunks []domain.Chunk) (Result, error) {
	if len(chunks) == 0 {
		p.logOutcome(tenantID, question, OutcomeRefused)
		return Result{Text: domain.RefusalText, Refused: true, Sources: []domain.Metadata{}}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	text, err := p.generator.Generate(ctx, question, texts)
	if err != nil {
		p.logger.Error("generation failed", "tenant", tenantID, "generator", p.generator.Name(), "error", err)
		return Result{}, domain.Upstream("generation", err)
	}

	if p.detector.IsRefusal(text) {
		p.logOutcome(tenantID, question, OutcomeRefused)
		return Result{Text: text, Refused: true, Sources: []domain.Metadata{}}, nil
	}
	p.logOutcome(tenantID, question, OutcomeAnswered)
	return Result{Text: text, Sources: Sources(chunks)}, nil
}

// Sources returns one metadata record per (SourceName, Page), in first-seen order.
func Sources(chunks []domain.Chunk) []domain.Metadata {
	type key struct {
		source string
		page   int
	}
	seen := make(map[key]struct{}, len(chunks))
	out := make([]domain.Metadata, 0, len(chunks))
	for _, c := range chunks {
		k := key{c.Metadata.SourceName, c.Metadata.Page}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c.Metadata)
	}
	return out
}

func (p *Pipeline) logOutcome(tenantID, question, outcome string) {
	p.logger.Info("answer outcome", "tenant", tenantID, "question", question, "outcome", outcome)
}
