package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeServer answers /embeddings with vectors whose first component is the input length.
func fakeServer(t *testing.T, failFirst int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		if n <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
			return
		}
		var req embeddingsRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(len(in)), 1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbedLearnsDimension(t *testing.T) {
	srv, _ := fakeServer(t, 0, 0)
	e, err := New(Config{BaseURL: srv.URL, Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimension())

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0}, v)
	assert.Equal(t, 3, e.Dimension())
	assert.Equal(t, "openai:nomic-embed-text", e.Name())
}

func TestEmbedBatchKeepsOrderAcrossBatches(t *testing.T) {
	srv, calls := fakeServer(t, 0, 0)
	e, err := New(Config{BaseURL: srv.URL, BatchSize: 2})
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	out, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, v := range out {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	srv, calls := fakeServer(t, 2, http.StatusTooManyRequests)
	e, err := New(Config{BaseURL: srv.URL, MaxRetries: 3, RetryBase: time.Millisecond})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, float32(2), v[0])
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := fakeServer(t, 5, http.StatusBadRequest)
	e, err := New(Config{BaseURL: srv.URL, MaxRetries: 3, RetryBase: time.Millisecond})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedWithoutRetriesFailsFast(t *testing.T) {
	srv, calls := fakeServer(t, 1, http.StatusServiceUnavailable)
	e, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRequiresKeyForHostedAPI(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	srv, _ := fakeServer(t, 0, 0)
	e, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "   ")
	assert.Error(t, err)
}
