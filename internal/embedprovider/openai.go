package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize         = 100
	defaultConcurrency       = 4
	maxConcurrency           = 32
	defaultMaxRetries        = 3
	defaultRetryBaseDelayMS  = 500
	defaultRetryMaxDelayMS   = 20_000
	defaultBatchAPIThreshold = 2500
)

type openAIProvider struct {
	cfg         Config
	client      *http.Client
	fingerprint string
}

func newOpenAIProvider(cfg Config) (*openAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedding provider requires a model")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Concurrency > maxConcurrency {
		cfg.Concurrency = maxConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBaseDelayMS <= 0 {
		cfg.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if cfg.RetryMaxDelayMS <= 0 {
		cfg.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
	if cfg.BatchAPIThreshold <= 0 {
		cfg.BatchAPIThreshold = defaultBatchAPIThreshold
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	fp := configFingerprint("openai", cfg.Model, strconv.Itoa(cfg.Dimensions), cfg.BaseURL)
	return &openAIProvider{
		cfg:         cfg,
		client:      &http.Client{Timeout: 120 * time.Second},
		fingerprint: fp,
	}, nil
}

func (p *openAIProvider) Name() string             { return "openai" }
func (p *openAIProvider) Model() string             { return p.cfg.Model }
func (p *openAIProvider) Dimensions() int           { return p.cfg.Dimensions }
func (p *openAIProvider) ConfigFingerprint() string { return p.fingerprint }
func (p *openAIProvider) BatchSize() int            { return p.cfg.BatchSize }
func (p *openAIProvider) BatchAPIThreshold() int    { return p.cfg.BatchAPIThreshold }

// Embed partitions texts into batch_size groups and runs up to
// concurrency of them in parallel over a shared cursor (work-stealing).
// Once len(texts) reaches BatchAPIThreshold it instead routes through
// the asynchronous batch-job workflow (batchjob.go).
func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if len(texts) >= p.cfg.BatchAPIThreshold {
		return p.EmbedBatchJob(ctx, texts, nil)
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		out, wasTruncated := truncate(t)
		truncated[i] = out
		if wasTruncated {
			slog.Warn("embedding_input_truncated", slog.Int("index", i), slog.Int("max_chars", maxInputChars))
		}
	}

	batches := partition(truncated, p.cfg.BatchSize)
	results := make([][][]float32, len(batches))

	var cursor int64 = -1
	g, gctx := errgroup.WithContext(ctx)
	workers := p.cfg.Concurrency
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(atomic.AddInt64(&cursor, 1))
				if idx >= len(batches) {
					return nil
				}
				vecs, err := p.embedBatchWithRetry(gctx, batches[idx])
				if err != nil {
					return err
				}
				results[idx] = vecs
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func partition(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

func (p *openAIProvider) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		vecs, retryAfter, err := p.embedBatchOnce(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if _, retryable := err.(*retryableError); !retryable || attempt >= p.cfg.MaxRetries {
			return nil, err
		}

		delay := backoffDelay(p.cfg.RetryBaseDelayMS, p.cfg.RetryMaxDelayMS, attempt, retryAfter)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

type retryableError struct{ error }

func backoffDelay(baseMS, maxMS, attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > time.Duration(maxMS)*time.Millisecond {
			return time.Duration(maxMS) * time.Millisecond
		}
		return retryAfter
	}
	backoff := float64(baseMS) * math.Pow(2, float64(attempt))
	jitter := rand.Float64() * float64(baseMS)
	d := time.Duration(backoff+jitter) * time.Millisecond
	if d > time.Duration(maxMS)*time.Millisecond {
		d = time.Duration(maxMS) * time.Millisecond
	}
	return d
}

func (p *openAIProvider) embedBatchOnce(ctx context.Context, batch []string) ([][]float32, time.Duration, error) {
	reqBody := embeddingRequest{Model: p.cfg.Model, Input: batch, Dimensions: p.cfg.Dimensions}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, &retryableError{fmt.Errorf("embedding request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &retryableError{fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		return nil, 0, fmt.Errorf("embedding request non-retryable failure (status %d): %s", resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, 0, fmt.Errorf("embedding response length mismatch: got %d, want %d", len(parsed.Data), len(batch))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
