package embedprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneProvider_EmptyVectors(t *testing.T) {
	p, err := New(Config{Provider: "none"})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Empty(t, vecs[0])
	assert.Empty(t, vecs[1])
	assert.Equal(t, 0, p.Dimensions())
}

func TestHashProvider_Deterministic(t *testing.T) {
	p, err := New(Config{Provider: "hash", Dimensions: 32})
	require.NoError(t, err)

	vecs1, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	vecs2, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, vecs1, vecs2)
	require.Len(t, vecs1[0], 32)
}

func TestHashProvider_DifferentTextsDiffer(t *testing.T) {
	p, err := New(Config{Provider: "hash", Dimensions: 16})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestHashProvider_L2Normalized(t *testing.T) {
	vec := hashEmbed("some content to embed", 64)
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-4)
}

func TestHashProvider_DefaultDimensions(t *testing.T) {
	p, err := New(Config{Provider: "hash"})
	require.NoError(t, err)
	assert.Equal(t, defaultHashDimensions, p.Dimensions())
}

func TestConfigFingerprint_VariesByProvider(t *testing.T) {
	none, _ := New(Config{Provider: "none"})
	hash, _ := New(Config{Provider: "hash"})
	assert.NotEqual(t, none.ConfigFingerprint(), hash.ConfigFingerprint())
}

func TestConfigFingerprint_VariesByDimensions(t *testing.T) {
	a, _ := New(Config{Provider: "hash", Dimensions: 16})
	b, _ := New(Config{Provider: "hash", Dimensions: 32})
	assert.NotEqual(t, a.ConfigFingerprint(), b.ConfigFingerprint())
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 100)
	out, truncated := truncate(short)
	assert.False(t, truncated)
	assert.Equal(t, short, out)

	long := strings.Repeat("b", maxInputChars+500)
	out, truncated = truncate(long)
	assert.True(t, truncated)
	assert.Len(t, out, maxInputChars)
}

func TestOpenAIProvider_RequiresModel(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	assert.Error(t, err)
}

func TestOpenAIProvider_DefaultsApplied(t *testing.T) {
	p, err := New(Config{Provider: "openai", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	oai := p.(*openAIProvider)
	assert.Equal(t, defaultBatchSize, oai.cfg.BatchSize)
	assert.Equal(t, defaultConcurrency, oai.cfg.Concurrency)
	assert.Equal(t, defaultMaxRetries, oai.cfg.MaxRetries)
	assert.Equal(t, defaultBatchAPIThreshold, oai.cfg.BatchAPIThreshold)
	assert.Equal(t, "https://api.openai.com/v1", oai.cfg.BaseURL)
}

func TestOpenAIProvider_ConcurrencyClamped(t *testing.T) {
	p, err := New(Config{Provider: "openai", Model: "m", Concurrency: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxConcurrency, p.(*openAIProvider).cfg.Concurrency)
}

func TestOpenAIProvider_Embed_Success(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.2,0.3]},{"index":0,"embedding":[0.1,0.1]}]}`))
	}))
	defer server.Close()

	p, err := New(Config{Provider: "openai", Model: "m", BaseURL: server.URL, BatchSize: 10})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.1}, vecs[0])
	assert.Equal(t, []float32{0.2, 0.3}, vecs[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_Embed_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`rate limited`))
			return
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer server.Close()

	p, err := New(Config{
		Provider: "openai", Model: "m", BaseURL: server.URL,
		RetryBaseDelayMS: 1, RetryMaxDelayMS: 5,
	})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"one"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_Embed_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad request`))
	}))
	defer server.Close()

	p, err := New(Config{Provider: "openai", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"one"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_Embed_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := New(Config{
		Provider: "openai", Model: "m", BaseURL: server.URL,
		MaxRetries: 2, RetryBaseDelayMS: 1, RetryMaxDelayMS: 2,
	})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"one"})
	assert.Error(t, err)
}

func TestBackoffDelay_HonorsRetryAfter(t *testing.T) {
	d := backoffDelay(500, 20000, 0, 7*time.Second)
	assert.Equal(t, 7*time.Second, d)
}

func TestBackoffDelay_ClampsRetryAfterToMax(t *testing.T) {
	d := backoffDelay(500, 1000, 0, 10*time.Second)
	assert.Equal(t, 1000*time.Millisecond, d)
}

func TestBackoffDelay_ExponentialWithJitterWithinBounds(t *testing.T) {
	d := backoffDelay(500, 20000, 3, 0)
	assert.GreaterOrEqual(t, d, 500*8*time.Millisecond)
	assert.LessOrEqual(t, d, 20000*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-number"))
}

func TestPartition(t *testing.T) {
	batches := partition([]string{"a", "b", "c", "d", "e"}, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestBuildJSONL_OneRowPerInput(t *testing.T) {
	jsonl, err := buildJSONL([]string{"alpha", "beta"}, "m", 8)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(jsonl), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"custom_id":"chunk-0"`)
	assert.Contains(t, lines[1], `"custom_id":"chunk-1"`)
}

func TestCustomIDIndex(t *testing.T) {
	idx, err := customIDIndex("chunk-42")
	require.NoError(t, err)
	assert.Equal(t, 42, idx)

	_, err = customIDIndex("not-a-chunk-id")
	assert.Error(t, err)
}

func TestFindResumableBatch_SkipsFailedAndMatchesContentSHA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"batch_old","status":"failed","metadata":{"content_sha":"abc"}},
			{"id":"batch_match","status":"in_progress","metadata":{"content_sha":"abc"}}
		]}`))
	}))
	defer server.Close()

	p, err := New(Config{Provider: "openai", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)
	oai := p.(*openAIProvider)

	batch, err := oai.findResumableBatch(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "batch_match", batch.ID)
}

func TestFindResumableBatch_NoMatchReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	p, err := New(Config{Provider: "openai", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)
	oai := p.(*openAIProvider)

	batch, err := oai.findResumableBatch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, batch)
}
