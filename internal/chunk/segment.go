package chunk

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// segment is an intermediate, mutable representation of a chunk while it
// is being split/refined/merged. It is converted to a docmodel.Chunk
// only once all phases are complete.
type segment struct {
	Kind          string // "preamble", "heading", "file"
	HeadingText   string
	HeadingLevel  int // 0 for preamble/file
	AncestorTexts []string
	AncestorSlugs []string
	Slug          string
	Nodes         []ast.Node
	Part          int // 1-based; 0 means "not yet assigned / single part"
	PartTotal     int
}

func pathJoin(parts []string) string {
	return strings.Join(parts, "/")
}

func textsOf(stack []stackEntry) []string {
	out := make([]string, len(stack))
	for i, e := range stack {
		out[i] = e.text
	}
	return out
}

func slugsOf(stack []stackEntry) []string {
	out := make([]string, len(stack))
	for i, e := range stack {
		out[i] = e.slug
	}
	return out
}

type stackEntry struct {
	level int
	text  string
	slug  string
}

// topLevelChildren returns doc's direct children, in document order.
func topLevelChildren(doc ast.Node) []ast.Node {
	var out []ast.Node
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, c)
	}
	return out
}

// splitFileStrategy produces the single segment covering every node in
// the document, used by the "file" chunk_by strategy.
func splitFileStrategy(doc ast.Node) []*segment {
	nodes := topLevelChildren(doc)
	if len(nodes) == 0 {
		return nil
	}
	return []*segment{{Kind: "file", Nodes: nodes}}
}

// targetLevelFor maps a ChunkBy value to a heading depth.
func targetLevelFor(chunkBy string) int {
	switch chunkBy {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	default:
		return 2
	}
}

// splitByHeadingLevel walks doc's top-level children and splits at every
// heading whose depth equals targetLevel, tracking shallower headings as
// ancestor context. Headings deeper than targetLevel remain body content
// until a later refinement pass considers them.
func splitByHeadingLevel(doc ast.Node, source []byte, targetLevel int) []*segment {
	var out []*segment
	var stack []stackEntry
	dedup := newSlugDeduper()

	var preambleNodes []ast.Node
	var current *segment
	boundarySeen := false

	emitPreambleIfAny := func() {
		if len(preambleNodes) > 0 && !isBlank(preambleNodes, source) {
			out = append(out, &segment{Kind: "preamble", Nodes: preambleNodes})
		}
	}

	for _, n := range topLevelChildren(doc) {
		h, isHeading := n.(*ast.Heading)
		if isHeading {
			level := h.Level
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			if level == targetLevel {
				if current != nil {
					out = append(out, current)
				} else if !boundarySeen {
					emitPreambleIfAny()
				}
				boundarySeen = true

				htext := headingText(h, source)
				parentPath := pathJoin(slugsOf(stack))
				slug := dedup.Next(parentPath, slugify(htext))
				current = &segment{
					Kind:          "heading",
					HeadingText:   htext,
					HeadingLevel:  level,
					AncestorTexts: append([]string{}, textsOf(stack)...),
					AncestorSlugs: append([]string{}, slugsOf(stack)...),
					Slug:          slug,
					Nodes:         []ast.Node{n},
				}
				continue
			}
			if level < targetLevel {
				htext := headingText(h, source)
				parentPath := pathJoin(slugsOf(stack))
				slug := dedup.Next(parentPath, slugify(htext))
				stack = append(stack, stackEntry{level: level, text: htext, slug: slug})
				if current != nil {
					current.Nodes = append(current.Nodes, n)
				} else {
					preambleNodes = append(preambleNodes, n)
				}
				continue
			}
		}
		if current != nil {
			current.Nodes = append(current.Nodes, n)
		} else {
			preambleNodes = append(preambleNodes, n)
		}
	}

	if current != nil {
		out = append(out, current)
	} else if !boundarySeen {
		emitPreambleIfAny()
	}
	return out
}

// segmentLen computes L(segment): the raw markdown length of the source
// slice from the first to the last node, falling back to the joined
// plain-text rendering when offsets are unavailable.
func segmentLen(s *segment, source []byte) int {
	return len(segmentContent(s, source))
}

// segmentContent reconstructs a segment's raw markdown content.
func segmentContent(s *segment, source []byte) string {
	start, end := rangeSpan(s.Nodes)
	if start >= 0 && end >= 0 {
		return sourceSlice(source, start, end)
	}
	return blockPlainText(s.Nodes, source)
}

// hasSubHeadingAt reports whether any heading at exactly `level` exists
// among s.Nodes (searched at top-level of s.Nodes, not recursively below
// further nested headings already claimed by a different segment).
func hasSubHeadingAt(s *segment, level int) bool {
	for _, n := range s.Nodes {
		if h, ok := n.(*ast.Heading); ok && h.Level == level {
			return true
		}
	}
	return false
}
