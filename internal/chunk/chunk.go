package chunk

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/manifest"
)

var md = goldmark.New()

// BuildChunks deterministically splits one file's Markdown AST into an
// ordered sequence of chunks per the configured strategy and metadata.
func BuildChunks(filepath, markdown string, strategy docmodel.ChunkingStrategy, metadata map[string]string) ([]docmodel.Chunk, error) {
	source := []byte(manifest.StripFrontmatter(markdown))
	doc := md.Parser().Parse(text.NewReader(source))

	var initial []*segment
	if strategy.ChunkBy == docmodel.ChunkByFile {
		initial = splitFileStrategy(doc)
	} else {
		initial = splitByHeadingLevel(doc, source, targetLevelFor(string(strategy.ChunkBy)))
	}

	dedup := newSlugDeduper()
	max := strategy.Max()
	min := strategy.MinChunkSize

	var refined []*segment
	for _, s := range initial {
		refined = append(refined, refine(s, source, max, dedup)...)
	}
	refined = mergeUndersize(refined, source, min)

	chunks := make([]docmodel.Chunk, 0, len(refined))
	for i, s := range refined {
		chunks = append(chunks, materialize(filepath, s, source, metadata, i))
	}
	return chunks, nil
}

func materialize(filePath string, s *segment, source []byte, metadata map[string]string, index int) docmodel.Chunk {
	id := chunkID(filePath, s)
	content := segmentContent(s, source)
	contentText := blockPlainText(s.Nodes, source)
	breadcrumb := buildBreadcrumb(filePath, s)

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	return docmodel.Chunk{
		ChunkID:      id,
		Filepath:     filePath,
		Heading:      s.HeadingText,
		HeadingLevel: s.HeadingLevel,
		Content:      content,
		ContentText:  contentText,
		Breadcrumb:   breadcrumb,
		ChunkIndex:   index,
		Metadata:     meta,
	}
}

func chunkID(filePath string, s *segment) string {
	switch s.Kind {
	case "file":
		if s.Part > 1 {
			return fmt.Sprintf("%s#_part-%d", filePath, s.Part)
		}
		return filePath
	case "preamble":
		base := filePath + "#_preamble"
		if s.Part > 1 {
			return fmt.Sprintf("%s-part-%d", base, s.Part)
		}
		return base
	default: // "heading"
		path := pathJoin(append(append([]string{}, s.AncestorSlugs...), s.Slug))
		base := filePath + "#" + path
		if s.Part > 1 {
			return fmt.Sprintf("%s-part-%d", base, s.Part)
		}
		return base
	}
}

func buildBreadcrumb(filePath string, s *segment) string {
	parts := []string{filePath}
	parts = append(parts, s.AncestorTexts...)
	if s.HeadingText != "" {
		parts = append(parts, s.HeadingText)
	}
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ▸ ")
}
