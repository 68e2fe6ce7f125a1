package manifest

import (
	"encoding/json"
	"regexp"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

// hintPattern matches a terse single-key HTML hint comment. It
// deliberately does not handle nested braces in the hint body; the
// comment is a terse single-key hint by contract.
var hintPattern = regexp.MustCompile(`<!--\s*mcp_chunking_hint:\s*(\{[^}]+\})\s*-->`)

// ParseChunkingHint scans markdown for a `mcp_chunking_hint` HTML comment
// and returns its chunk_by value. A malformed or absent hint is silently
// ignored, returning ok=false.
func ParseChunkingHint(markdown string) (docmodel.ChunkBy, bool) {
	m := hintPattern.FindStringSubmatch(markdown)
	if m == nil {
		return "", false
	}
	var payload struct {
		ChunkBy string `json:"chunk_by"`
	}
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return "", false
	}
	if payload.ChunkBy == "" {
		return "", false
	}
	return docmodel.ChunkBy(payload.ChunkBy), true
}
