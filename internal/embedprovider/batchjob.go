package embedprovider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// pollIntervals escalates as the spec prescribes, repeating the last
// entry once exhausted.
var pollIntervals = []time.Duration{
	10 * time.Second, 10 * time.Second, 10 * time.Second,
	30 * time.Second, 30 * time.Second, 60 * time.Second,
}

const batchJobCeiling = 2 * time.Hour

// BatchJobState is the single-task state machine driving the async
// embedding workflow.
type BatchJobState string

const (
	StateUploading   BatchJobState = "uploading"
	StatePolling     BatchJobState = "polling"
	StateDownloading BatchJobState = "downloading"
	StateDone        BatchJobState = "done"
	StateFailed      BatchJobState = "failed"
)

// BatchProgress is emitted once per second while polling.
type BatchProgress struct {
	State       BatchJobState
	Completed   int
	Total       int
	PercentDone float64
	ETA         time.Duration
	NextPollIn  time.Duration
}

// BatchProgressFunc receives progress events during EmbedBatchJob.
type BatchProgressFunc func(BatchProgress)

type batchJSONLRow struct {
	CustomID string        `json:"custom_id"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Body     embeddingBody `json:"body"`
}

type embeddingBody struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type batchObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	OutputFileID  string            `json:"output_file_id"`
	RequestCounts batchCounts       `json:"request_counts"`
}

type batchCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type batchListResponse struct {
	Data []batchObject `json:"data"`
}

// EmbedBatchJob runs the asynchronous batch-job workflow: build JSONL,
// resume a matching in-flight/completed batch by content hash, or
// upload and create a new one, then poll to completion and download
// results.
func (p *openAIProvider) EmbedBatchJob(ctx context.Context, texts []string, onProgress BatchProgressFunc) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		out, wasTruncated := truncate(t)
		truncated[i] = out
		if wasTruncated {
			slog.Warn("embedding_input_truncated", slog.Int("index", i))
		}
	}

	jsonl, err := buildJSONL(truncated, p.cfg.Model, p.cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	contentSHA := sha256Hex(jsonl)

	batch, err := p.findResumableBatch(ctx, contentSHA)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		report(onProgress, BatchProgress{State: StateUploading})
		fileID, err := p.uploadBatchFile(ctx, jsonl)
		if err != nil {
			return nil, err
		}
		batch, err = p.createBatch(ctx, fileID, contentSHA)
		if err != nil {
			return nil, err
		}
	}

	batch, err = p.pollUntilDone(ctx, batch.ID, len(texts), onProgress)
	if err != nil {
		return nil, err
	}

	report(onProgress, BatchProgress{State: StateDownloading, Total: len(texts)})
	results, err := p.downloadResults(ctx, batch.OutputFileID, len(texts))
	if err != nil {
		return nil, err
	}
	report(onProgress, BatchProgress{State: StateDone, Total: len(texts), Completed: len(texts), PercentDone: 100})
	return results, nil
}

func report(f BatchProgressFunc, p BatchProgress) {
	if f != nil {
		f(p)
	}
}

func buildJSONL(texts []string, model string, dims int) ([]byte, error) {
	var buf bytes.Buffer
	for i, text := range texts {
		row := batchJSONLRow{
			CustomID: fmt.Sprintf("chunk-%d", i),
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body:     embeddingBody{Model: model, Input: text, Dimensions: dims},
		}
		line, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// findResumableBatch searches recent batches for one whose
// metadata.content_sha matches, skipping terminal failure states so a
// restart resumes rather than re-embeds.
func (p *openAIProvider) findResumableBatch(ctx context.Context, contentSHA string) (*batchObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/batches?limit=100", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("list batches failed (status %d): %s", resp.StatusCode, body)
	}

	var list batchListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode batch list: %w", err)
	}
	for _, b := range list.Data {
		if b.Metadata["content_sha"] != contentSHA {
			continue
		}
		switch b.Status {
		case "failed", "expired", "cancelled":
			continue
		default:
			return &b, nil
		}
	}
	return nil, nil
}

func (p *openAIProvider) uploadBatchFile(ctx context.Context, jsonl []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", "batch.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload batch file: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upload batch file failed (status %d): %s", resp.StatusCode, body)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode file upload response: %w", err)
	}
	return parsed.ID, nil
}

func (p *openAIProvider) createBatch(ctx context.Context, fileID, contentSHA string) (*batchObject, error) {
	payload, err := json.Marshal(map[string]any{
		"input_file_id":     fileID,
		"endpoint":          "/v1/embeddings",
		"completion_window": "24h",
		"metadata": map[string]string{
			"batch_name":  "docsmcp-embed",
			"content_sha": contentSHA,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/batches", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("create batch failed (status %d): %s", resp.StatusCode, body)
	}

	var b batchObject
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

func (p *openAIProvider) pollUntilDone(ctx context.Context, batchID string, total int, onProgress BatchProgressFunc) (*batchObject, error) {
	deadline := time.Now().Add(batchJobCeiling)
	pollIdx := 0
	start := time.Now()

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("batch job %s exceeded %s ceiling", batchID, batchJobCeiling)
		}

		b, err := p.getBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}
		switch b.Status {
		case "completed":
			return b, nil
		case "failed", "expired", "cancelled":
			return nil, fmt.Errorf("batch job %s ended with status %q", batchID, b.Status)
		}

		interval := pollIntervals[pollIdx]
		if pollIdx < len(pollIntervals)-1 {
			pollIdx++
		}

		elapsed := time.Since(start)
		var eta time.Duration
		if b.RequestCounts.Completed > 0 && elapsed > 0 {
			rate := float64(b.RequestCounts.Completed) / elapsed.Seconds()
			remaining := float64(total - b.RequestCounts.Completed)
			if rate > 0 {
				eta = time.Duration(remaining/rate) * time.Second
			}
		}
		percent := 0.0
		if total > 0 {
			percent = 100 * float64(b.RequestCounts.Completed) / float64(total)
		}
		for remaining := interval; remaining > 0; {
			report(onProgress, BatchProgress{
				State:       StatePolling,
				Completed:   b.RequestCounts.Completed,
				Total:       total,
				PercentDone: percent,
				ETA:         eta,
				NextPollIn:  remaining,
			})

			step := time.Second
			if remaining < step {
				step = remaining
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(step):
			}
			remaining -= step
		}
	}
}

func (p *openAIProvider) getBatch(ctx context.Context, batchID string) (*batchObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/batches/"+batchID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get batch failed (status %d): %s", resp.StatusCode, body)
	}

	var b batchObject
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

type batchResultLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body struct {
			Data []embeddingDatum `json:"data"`
		} `json:"body"`
	} `json:"response"`
}

func (p *openAIProvider) downloadResults(ctx context.Context, outputFileID string, total int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/files/"+outputFileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download batch results: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download batch results failed (status %d): %s", resp.StatusCode, body)
	}

	out := make([][]float32, total)
	for _, line := range bytes.Split(body, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var row batchResultLine
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("decode batch result row: %w", err)
		}
		idx, err := customIDIndex(row.CustomID)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= total || len(row.Response.Body.Data) == 0 {
			continue
		}
		out[idx] = row.Response.Body.Data[0].Embedding
	}
	return out, nil
}

func customIDIndex(customID string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(customID, "chunk-%d", &idx); err != nil {
		return -1, fmt.Errorf("malformed custom_id %q: %w", customID, err)
	}
	return idx, nil
}
