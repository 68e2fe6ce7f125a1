// Package manifest resolves the per-file chunking strategy and taxonomy
// metadata from `.docs-mcp.json` manifests, path overrides, HTML hint
// comments, and frontmatter. It has no knowledge of the chunker that
// consumes its output.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/errs"
)

// FileName is the manifest filename looked for in every directory.
const FileName = ".docs-mcp.json"

// Load reads and validates a manifest document from dir/.docs-mcp.json.
// It returns (nil, nil) when no manifest file exists at that path.
func Load(dir string) (*docmodel.Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Config(fmt.Sprintf("reading manifest %s: %v", path, err))
	}

	var m docmodel.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.ConfigField(path, fmt.Sprintf("invalid manifest JSON: %v", err))
	}
	if err := Validate(&m, path); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks a manifest against the documented schema, returning a
// field-qualified error on the first violation.
func Validate(m *docmodel.Manifest, path string) error {
	if m.Version == "" {
		m.Version = "1"
	}
	if m.Version != "1" {
		return errs.ConfigField(path+".version", fmt.Sprintf("unsupported manifest version %q", m.Version))
	}
	if m.Strategy != nil {
		if err := validateStrategy(*m.Strategy, path+".strategy"); err != nil {
			return err
		}
	}
	for i, ov := range m.Overrides {
		field := fmt.Sprintf("%s.overrides[%d]", path, i)
		if ov.Pattern == "" {
			return errs.ConfigField(field+".pattern", "override pattern must not be empty")
		}
		if _, err := filepath.Match(ov.Pattern, "probe"); err != nil {
			return errs.ConfigField(field+".pattern", fmt.Sprintf("invalid glob: %v", err))
		}
		if ov.Strategy != nil {
			if err := validateStrategy(*ov.Strategy, field+".strategy"); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStrategy(s docmodel.ChunkingStrategy, field string) error {
	switch s.ChunkBy {
	case docmodel.ChunkByH1, docmodel.ChunkByH2, docmodel.ChunkByH3, docmodel.ChunkByFile, "":
	default:
		return errs.ConfigField(field+".chunk_by", fmt.Sprintf("invalid chunk_by %q", s.ChunkBy))
	}
	if s.MaxChunkSize < 0 {
		return errs.ConfigField(field+".max_chunk_size", "must be positive")
	}
	if s.MinChunkSize < 0 {
		return errs.ConfigField(field+".min_chunk_size", "must be positive")
	}
	return nil
}
