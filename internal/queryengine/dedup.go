package queryengine

import (
	"strconv"
	"strings"

	"github.com/docsmcp/docsmcp/internal/tablestore"
)

// collapseCandidate is a scored row carrying the metadata needed to
// compute its variant-collapse key.
type collapseCandidate struct {
	row   tablestore.Row
	score float64
}

// collapsibleKeys returns the vector_collapse taxonomy keys that are
// not overridden by an active request filter — only those participate
// in variant collapse for this request.
func (e *Engine) collapsibleKeys(filters map[string]string) []string {
	var keys []string
	for key := range e.vectorCollapseKeys {
		if _, overridden := filters[key]; overridden {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// partNumber extracts the `-part-N` suffix from a chunk ID, returning
// ("", false) when absent.
func partNumber(chunkID string) (string, bool) {
	idx := strings.LastIndex(chunkID, "-part-")
	if idx < 0 {
		return "", false
	}
	suffix := chunkID[idx+len("-part-"):]
	if _, err := strconv.Atoi(suffix); err != nil {
		return "", false
	}
	return suffix, true
}

// collapseKey computes the variant-collapse key for row given the
// collapsible taxonomy keys, or ("", false) when row is not
// collapsible: any required metadata value is missing, or any of
// them does not appear as a path segment of row.Filepath.
func collapseKey(row tablestore.Row, keys []string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}

	path := row.Filepath
	segments := strings.Split(path, "/")
	replaced := false

	for _, key := range keys {
		val := row.Metadata[key]
		if val == "" {
			return "", false
		}
		found := false
		for i, seg := range segments {
			if seg == val {
				segments[i] = "*"
				found = true
				replaced = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	if !replaced {
		return "", false
	}

	key := strings.Join(segments, "/") + ":" + row.Heading
	if part, ok := partNumber(row.ChunkID); ok {
		key += ":" + part
	}
	return key, true
}

// collapseVariants keeps, among rows sharing a collapse key, the
// highest-scoring one (earliest encountered on a tie). Rows that are
// not collapsible pass through unique.
func collapseVariants(candidates []collapseCandidate, keys []string) []collapseCandidate {
	best := make(map[string]int) // collapse key -> index into kept
	var kept []collapseCandidate

	for _, c := range candidates {
		key, ok := collapseKey(c.row, keys)
		if !ok {
			kept = append(kept, c)
			continue
		}
		if idx, seen := best[key]; seen {
			if c.score > kept[idx].score {
				kept[idx] = c
			}
			continue
		}
		best[key] = len(kept)
		kept = append(kept, c)
	}
	return kept
}
