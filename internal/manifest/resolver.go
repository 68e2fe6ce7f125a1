package manifest

import (
	"path/filepath"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

// DefaultStrategy is the strategy used when no manifest or override
// provides one.
var DefaultStrategy = docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2}

// Input is the per-file context the resolver needs.
type Input struct {
	RelativeFilePath string
	Markdown         string
	NearestManifest  *docmodel.Manifest
	ManifestBaseDir  string
	Defaults         docmodel.ResolvedConfig
}

// Resolve produces the ResolvedConfig for one file by merging, in
// ascending precedence: defaults, the nearest manifest's root
// strategy/metadata, matching overrides in order, the per-file HTML hint
// comment (chunk_by only), and frontmatter (strategy and metadata).
func Resolve(in Input) (docmodel.ResolvedConfig, error) {
	cfg := docmodel.ResolvedConfig{
		Strategy: in.Defaults.Strategy,
		Metadata: cloneMeta(in.Defaults.Metadata),
	}
	if cfg.Strategy.ChunkBy == "" {
		cfg.Strategy = DefaultStrategy
	}

	if in.NearestManifest != nil {
		if in.NearestManifest.Strategy != nil {
			cfg.Strategy = *in.NearestManifest.Strategy
		}
		mergeMeta(cfg.Metadata, in.NearestManifest.Metadata)

		relToBase := in.RelativeFilePath
		if in.ManifestBaseDir != "" {
			if rel, err := filepath.Rel(in.ManifestBaseDir, filepath.Join(in.ManifestBaseDir, in.RelativeFilePath)); err == nil {
				relToBase = rel
			}
		}
		for _, ov := range in.NearestManifest.Overrides {
			matched, _ := filepath.Match(ov.Pattern, relToBase)
			if !matched {
				// also try matching against the bare filename, since many
				// manifests write patterns like "*.md" without directory
				// components.
				matched, _ = filepath.Match(ov.Pattern, filepath.Base(relToBase))
			}
			if !matched {
				continue
			}
			if ov.Strategy != nil {
				cfg.Strategy = *ov.Strategy
			}
			mergeMeta(cfg.Metadata, ov.Metadata)
		}
	}

	if hint, ok := ParseChunkingHint(in.Markdown); ok {
		cfg.Strategy.ChunkBy = hint
	}

	fm, err := ParseFrontmatter(in.Markdown)
	if err != nil {
		return cfg, err
	}
	if fm != nil {
		if fm.Strategy != nil {
			cfg.Strategy = *fm.Strategy
		} else if fm.ChunkingHint != "" {
			cfg.Strategy.ChunkBy = docmodel.ChunkBy(fm.ChunkingHint)
		}
		mergeMeta(cfg.Metadata, fm.Metadata)
		mergeMeta(cfg.Metadata, fm.MCPMetadata)
	}

	return cfg, nil
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeMeta(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
