package evaluation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"docrag/internal/answer"
	"docrag/internal/domain"
	"docrag/internal/retrieval"
)

// ReasonRequiredDocumentsMissing marks records whose required sources were not retrieved.
const ReasonRequiredDocumentsMissing = "required_documents_not_present"

// Retriever is the retrieval side of the pipeline under evaluation.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, question string, opts retrieval.Options) (retrieval.Outcome, error)
}

// Answerer is the answer side of the pipeline under evaluation.
type Answerer interface {
	Answer(ctx context.Context, tenantID, question string, chunks []domain.Chunk) (answer.Result, error)
}

// Detail is the evaluation of one record.
type Detail struct {
	QuestionID   string             `json:"question_id"`
	Question     string             `json:"question"`
	Answer       string             `json:"answer,omitempty"`
	Retrieval    *RetrievalScore    `json:"retrieval,omitempty"`
	Faithfulness *FaithfulnessScore `json:"faithfulness,omitempty"`
	Skipped      bool               `json:"skipped,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Passed requires a scored record whose retrieval passed and whose answer is faithful.
func (d Detail) Passed() bool {
	return !d.Skipped && d.Error == "" &&
		d.Retrieval != nil && d.Retrieval.Passed &&
		d.Faithfulness != nil && d.Faithfulness.Faithful
}

// Summary aggregates a run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Report holds the summary and the per-record details in dataset order.
type Report struct {
	Summary Summary  `json:"summary"`
	Details []Detail `json:"details"`
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Harness replays records through retrieval and answering and scores them.
type Harness struct {
	retriever   Retriever
	answerer    Answerer
	opts        retrieval.Options
	concurrency int
	logger      *slog.Logger
}

// NewHarness creates a harness evaluating at most concurrency records at a time.
func NewHarness(retriever Retriever, answerer Answerer, opts retrieval.Options, concurrency int, logger *slog.Logger) *Harness {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{retriever: retriever, answerer: answerer, opts: opts, concurrency: concurrency, logger: logger}
}

// Run evaluates records against tenantID; a record's own Tenant overrides it.
// Upstream failures are recorded on the affected detail. Only cancellation of
// ctx aborts the run.
func (h *Harness) Run(ctx context.Context, tenantID string, records []Record) (Report, error) {
	details := make([]Detail, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tenant := tenantID
			if rec.Tenant != "" {
				tenant = rec.Tenant
			}
			d, err := h.evaluate(gctx, tenant, rec)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				h.logger.Error("evaluation record failed", "question_id", rec.ID, "error", err)
				d = Detail{QuestionID: rec.ID, Question: rec.Question, Error: err.Error()}
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Details: details, Summary: Summary{Total: len(details)}}
	for _, d := range details {
		switch {
		case d.Skipped:
			report.Summary.Skipped++
		case d.Error != "":
			report.Summary.Errors++
		case d.Passed():
			report.Summary.Passed++
		}
	}
	h.logger.Info("evaluation finished", "tenant", tenantID, "total", report.Summary.Total,
		"passed", report.Summary.Passed, "skipped", report.Summary.Skipped, "errors", report.Summary.Errors)
	return report, nil
}

func (h *Harness) evaluate(ctx context.Context, tenantID string, rec Record) (Detail, error) {
	out, err := h.retriever.Retrieve(ctx, tenantID, rec.Question, h.opts)
	if err != nil {
		return Detail{}, err
	}
	var chunks []domain.Chunk
	if !out.Refused {
		chunks = out.Chunks
	}
	d := Detail{QuestionID: rec.ID, Question: rec.Question}
	if !HasRequiredSource(chunks, rec.RequiredSources) {
		d.Skipped = true
		d.Reason = ReasonRequiredDocumentsMissing
		return d, nil
	}

	rs := ScoreRetrieval(chunks, rec.ExpectedKeywords, rec.ExpectedSource)
	res, err := h.answerer.Answer(ctx, tenantID, rec.Question, chunks)
	if err != nil {
		return Detail{}, err
	}
	fs := ScoreFaithfulness(res.Text, joinText(chunks))
	d.Answer = res.Text
	d.Retrieval = &rs
	d.Faithfulness = &fs
	return d, nil
}
