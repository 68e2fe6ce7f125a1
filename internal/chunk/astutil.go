package chunk

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type linesNode interface {
	Lines() *text.Segments
}

// firstOffset returns the byte offset of the first source line covered by
// n, descending into children when n itself carries no lines (e.g.
// containers like List/Blockquote).
func firstOffset(n ast.Node) int {
	if n == nil {
		return -1
	}
	if ln, ok := n.(linesNode); ok && ln.Lines().Len() > 0 {
		return ln.Lines().At(0).Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off := firstOffset(c); off >= 0 {
			return off
		}
	}
	return -1
}

// lastOffset returns the byte offset one past the last source line
// covered by n.
func lastOffset(n ast.Node) int {
	if n == nil {
		return -1
	}
	if ln, ok := n.(linesNode); ok && ln.Lines().Len() > 0 {
		segs := ln.Lines()
		return segs.At(segs.Len() - 1).Stop
	}
	for c := n.LastChild(); c != nil; c = c.PrevSibling() {
		if off := lastOffset(c); off >= 0 {
			return off
		}
	}
	return -1
}

// nodeSpan returns the [start, end) byte range n covers in source.
func nodeSpan(n ast.Node) (start, end int) {
	return firstOffset(n), lastOffset(n)
}

// rangeSpan returns the [start, end) byte range covering every node in
// nodes, which must be contiguous siblings in document order.
func rangeSpan(nodes []ast.Node) (start, end int) {
	start, end = -1, -1
	for _, n := range nodes {
		s, e := nodeSpan(n)
		if s < 0 {
			continue
		}
		if start < 0 || s < start {
			start = s
		}
		if e > end {
			end = e
		}
	}
	return start, end
}

// sourceSlice returns source[start:end], trimmed of a single trailing
// newline, or "" when the range is invalid.
func sourceSlice(source []byte, start, end int) string {
	if start < 0 || end < 0 || start > end || end > len(source) {
		return ""
	}
	return strings.TrimRight(string(source[start:end]), "\n")
}

// plainText renders n's descendant inline text nodes as plain text,
// preserving soft/hard line breaks, and extracting fenced/indented code
// bodies verbatim.
func plainText(n ast.Node, source []byte) string {
	var buf strings.Builder
	switch v := n.(type) {
	case *ast.FencedCodeBlock:
		writeLines(&buf, v.Lines(), source)
		return strings.TrimRight(buf.String(), "\n")
	case *ast.CodeBlock:
		writeLines(&buf, v.Lines(), source)
		return strings.TrimRight(buf.String(), "\n")
	case *ast.HTMLBlock:
		writeLines(&buf, v.Lines(), source)
		return strings.TrimRight(buf.String(), "\n")
	}

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch tn := node.(type) {
		case *ast.Text:
			buf.Write(tn.Segment.Value(source))
			if tn.SoftLineBreak() || tn.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(tn.Value)
		case *ast.CodeSpan:
			buf.WriteByte('`')
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func writeLines(buf *strings.Builder, lines *text.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}

// blockPlainText renders a run of top-level block nodes to plain text,
// joining each block's rendering on blank lines, matching the content_text
// construction rule.
func blockPlainText(nodes []ast.Node, source []byte) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind() == ast.KindHeading {
			h := n.(*ast.Heading)
			parts = append(parts, plainText(h, source))
			continue
		}
		txt := plainText(n, source)
		if strings.TrimSpace(txt) == "" {
			continue
		}
		parts = append(parts, txt)
	}
	return strings.Join(parts, "\n\n")
}

// headingText returns a heading node's rendered plain text.
func headingText(h *ast.Heading, source []byte) string {
	return plainText(h, source)
}

// isBlank reports whether a run of nodes renders to only whitespace.
func isBlank(nodes []ast.Node, source []byte) bool {
	for _, n := range nodes {
		start, end := nodeSpan(n)
		if strings.TrimSpace(sourceSlice(source, start, end)) != "" {
			return false
		}
	}
	return true
}
