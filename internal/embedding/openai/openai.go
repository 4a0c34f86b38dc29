package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	Dimensions int
	// MaxRetries bounds retries of 429 and 5xx responses. Zero disables retrying.
	MaxRetries int
	RetryBase  time.Duration
	// Parallel bounds concurrent batch requests.
	Parallel int
}

// Embedder is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It also serves Ollama through its /v1 endpoint.
type Embedder struct {
	client     *openai.Client
	model      string
	batchSize  int
	requestDim int
	maxRetries uint64
	retryBase  time.Duration
	parallel   int

	mu        sync.Mutex
	dimension int
}

// New creates an embeddings client using the provided configuration.
func New(cfg Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIKey == "" && strings.HasPrefix(cfg.BaseURL, defaultBaseURL) {
		return nil, errors.New("missing API key for OpenAI embeddings")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Embedder{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		requestDim: cfg.Dimensions,
		maxRetries: uint64(cfg.MaxRetries),
		retryBase:  cfg.RetryBase,
		parallel:   cfg.Parallel,
		dimension:  cfg.Dimensions,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai:" + e.model }

// Dimension returns the configured dimension, or the one learned from the
// first response. It is zero before the first call when not configured.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cannot embed empty text")
	}
	out, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in request batches of the configured size. Batches run
// concurrently; the result keeps input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("empty batch")
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      inputs,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.requestDim,
	}
	var resp openai.EmbeddingResponse
	b := retry.WithMaxRetries(e.maxRetries, retry.NewFibonacci(e.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		pos := d.Index
		if pos < 0 || pos >= len(out) || out[pos] != nil {
			pos = i
		}
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		if err := e.checkDimension(len(v)); err != nil {
			return nil, err
		}
		out[pos] = v
	}
	return out, nil
}

func (e *Embedder) checkDimension(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimension == 0 {
		e.dimension = n
		return nil
	}
	if n != e.dimension {
		return fmt.Errorf("openai embeddings: model returned %d dimensions, expected %d", n, e.dimension)
	}
	return nil
}

// retryable reports rate limiting and server-side failures.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
