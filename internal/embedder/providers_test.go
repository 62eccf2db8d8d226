package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer returns an httptest server speaking the OpenAI-compatible
// embeddings wire format. failures is the number of 500s to serve before
// succeeding.
func embeddingServer(t *testing.T, dimension int, failures int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if int(n) <= failures {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}

		var reqBody struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		data := make([]map[string]interface{}, len(reqBody.Input))
		for i := range reqBody.Input {
			vec := make([]float32, dimension)
			vec[0] = float32(i + 1)
			data[i] = map[string]interface{}{"index": i, "embedding": vec}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": reqBody.Model,
			"data":  data,
		})
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func testProvider(server *httptest.Server, cache *Cache) *remoteProvider {
	p := newRemoteProvider(ProviderJina, server.URL, "test-key", DefaultJinaModel, JinaDimension, cache)
	p.httpClient = server.Client()
	return p
}

func TestRemoteProviderBatch(t *testing.T) {
	server, _ := embeddingServer(t, JinaDimension, 0)
	provider := testProvider(server, nil)
	defer provider.Close()

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"scene one", "scene two"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderJina, resp.Provider)
	assert.Equal(t, DefaultJinaModel, resp.Model)
	assert.Equal(t, JinaDimension, resp.Embeddings[0].Dimension)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
}

func TestRemoteProviderBatchTooLarge(t *testing.T) {
	server, calls := embeddingServer(t, JinaDimension, 0)
	provider := testProvider(server, nil)
	defer provider.Close()

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}
	_, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, int32(0), calls.Load(), "oversized batch never reaches the API")
}

func TestRemoteProviderRetriesTransientErrors(t *testing.T) {
	server, calls := embeddingServer(t, JinaDimension, 2)
	provider := testProvider(server, nil)
	defer provider.Close()

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"flaky"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 1)
	assert.Equal(t, int32(3), calls.Load(), "two failures then success")
}

func TestRemoteProviderExhaustsRetries(t *testing.T) {
	server, calls := embeddingServer(t, JinaDimension, MaxRetries+1)
	provider := testProvider(server, nil)
	defer provider.Close()

	_, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"down"},
	})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(MaxRetries), calls.Load())
}

func TestRemoteProviderCaching(t *testing.T) {
	server, calls := embeddingServer(t, JinaDimension, 0)
	provider := testProvider(server, NewCache(10))
	defer provider.Close()

	ctx := context.Background()
	first, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached scene"})
	require.NoError(t, err)

	second, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached scene"})
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, int32(1), calls.Load(), "second call served from cache")
}

func TestRemoteProviderContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	provider := newRemoteProvider(ProviderOpenAI, server.URL, "test-key", DefaultOpenAIModel, OpenAIDimension, nil)
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"slow"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrProviderFailed))
}

func TestProviderMetadata(t *testing.T) {
	jina, err := NewJinaProvider("key", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, jina.Provider())
	assert.Equal(t, DefaultJinaModel, jina.Model())
	assert.Equal(t, JinaDimension, jina.Dimension())
	assert.NoError(t, jina.Close())

	openai, err := NewOpenAIProvider("key", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, openai.Provider())
	assert.Equal(t, DefaultOpenAIModel, openai.Model())
	assert.Equal(t, OpenAIDimension, openai.Dimension())
	assert.NoError(t, openai.Close())
}

func TestProviderRequiresAPIKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewOpenAIProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		result, err := retryWithBackoff(context.Background(), RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			Multiplier: 2,
		}, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		wantErr := errors.New("permanent")
		_, err := retryWithBackoff(context.Background(), RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   time.Millisecond,
			Multiplier: 1,
		}, func() (int, error) {
			return 0, wantErr
		})
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts := 0
		_, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() (int, error) {
			attempts++
			return 0, errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}
