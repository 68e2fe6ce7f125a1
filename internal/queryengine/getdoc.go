package queryengine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

var chunkIDShape = regexp.MustCompile(`^\S+$`)

// validateChunkID enforces the wire shape: non-whitespace, no spaces,
// at most one `#fragment` suffix.
func validateChunkID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || !chunkIDShape.MatchString(id) {
		return fmt.Errorf("invalid chunk_id %q: must be non-whitespace with no spaces", id)
	}
	if strings.Count(id, "#") > 1 {
		return fmt.Errorf("invalid chunk_id %q: at most one #fragment is allowed", id)
	}
	return nil
}

// GetDoc serves get_doc: validates chunk_id shape, looks up the target
// row, and renders either the whole file (context = -1) or a
// neighbor-expanded window of +/- context chunks as delimiter-separated
// blocks.
func (e *Engine) GetDoc(ctx context.Context, req docmodel.GetDocRequest) (*docmodel.GetDocResult, error) {
	if err := validateChunkID(req.ChunkID); err != nil {
		return nil, err
	}

	target, ok, err := e.store.GetByID(req.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("look up chunk %q: %w", req.ChunkID, err)
	}
	if !ok {
		return nil, fmt.Errorf("chunk %q not found", req.ChunkID)
	}

	contextSize := 0
	if req.Context != nil {
		contextSize = *req.Context
	}

	var rows []tablestore.Row
	if contextSize == -1 {
		rows, err = e.store.ChunksForFile(target.Filepath)
	} else {
		lo := target.ChunkIndex - contextSize
		if lo < 0 {
			lo = 0
		}
		hi := target.ChunkIndex + contextSize
		rows, err = e.store.ChunksInRange(target.Filepath, lo, hi)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch context rows for %q: %w", req.ChunkID, err)
	}

	total, err := e.fileChunkCount(target.Filepath)
	if err != nil {
		return nil, fmt.Errorf("count chunks for %q: %w", target.Filepath, err)
	}

	var blocks []string
	for _, row := range rows {
		label := fmt.Sprintf("Context: %+d", row.ChunkIndex-target.ChunkIndex)
		if row.ChunkID == target.ChunkID {
			label = "Target"
		}
		blocks = append(blocks, fmt.Sprintf(
			"--- Chunk: %s (Chunk %d of %d) (%s) ---\n%s",
			row.ChunkID, row.ChunkIndex+1, total, label, row.Content,
		))
	}

	return &docmodel.GetDocResult{Text: strings.Join(blocks, "\n\n")}, nil
}

func (e *Engine) fileChunkCount(filepath string) (int, error) {
	var count int
	err := e.store.DB().QueryRow(`SELECT COUNT(*) FROM chunks WHERE filepath = ?`, filepath).Scan(&count)
	return count, err
}
