package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrIngesterClosed is returned by Enqueue after Close.
var ErrIngesterClosed = errors.New("ingester closed")

// FileIngester indexes files for a tenant. *Service implements it.
type FileIngester interface {
	IngestFiles(ctx context.Context, tenantID string, paths ...string) (IngestReport, error)
}

// Job asks for one file to be ingested into a tenant's index.
type Job struct {
	TenantID string
	Path     string
}

// JobResult is reported once per finished job.
type JobResult struct {
	Job    Job
	Report IngestReport
	Err    error
}

// Ingester runs ingestion jobs on a bounded worker pool. Jobs for the same
// tenant still serialize on that tenant's index lock.
type Ingester struct {
	files    FileIngester
	onResult func(JobResult)
	logger   *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewIngester starts workers goroutines consuming a queue of queueSize jobs.
// onResult may be nil. Workers run until Close; ctx bounds each job.
func NewIngester(ctx context.Context, files FileIngester, workers, queueSize int, onResult func(JobResult), logger *slog.Logger) *Ingester {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingester{
		files:    files,
		onResult: onResult,
		logger:   logger,
		jobs:     make(chan Job, queueSize),
	}
	for range workers {
		in.wg.Add(1)
		go in.work(ctx)
	}
	return in
}

// Enqueue adds a job, blocking while the queue is full.
func (in *Ingester) Enqueue(ctx context.Context, job Job) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrIngesterClosed
	}
	select {
	case in.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (in *Ingester) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	close(in.jobs)
	in.mu.Unlock()
	in.wg.Wait()
}

func (in *Ingester) work(ctx context.Context) {
	defer in.wg.Done()
	for job := range in.jobs {
		report, err := in.files.IngestFiles(ctx, job.TenantID, job.Path)
		if err != nil {
			in.logger.Error("background ingest failed", "tenant", job.TenantID, "path", job.Path, "error", err)
		} else {
			in.logger.Info("background ingest done", "tenant", job.TenantID, "path", job.Path, "chunks", report.Chunks)
		}
		if in.onResult != nil {
			in.onResult(JobResult{Job: job, Report: report, Err: err})
		}
	}
}
