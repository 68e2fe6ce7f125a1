package chunk

import "github.com/yuin/goldmark/ast"

// refine implements Phase 1 (split oversize): for any segment whose raw
// markdown length exceeds max, recursively re-split at the next heading
// depth where sub-headings exist, virtually bump the depth when none
// exist yet, and fall back to greedy size-bounded node packing at depth
// 6 or when no deeper heading ever appears.
func refine(s *segment, source []byte, max int, dedup *slugDeduper) []*segment {
	if segmentLen(s, source) <= max {
		return []*segment{s}
	}

	for level := s.HeadingLevel + 1; level <= 6; level++ {
		if !hasSubHeadingAt(s, level) {
			continue
		}
		parts := splitAtLevel(s, source, level, dedup)
		var out []*segment
		for _, p := range parts {
			out = append(out, refine(p, source, max, dedup)...)
		}
		return out
	}

	return packBySize(s, source, max)
}

// splitAtLevel re-splits s.Nodes at headings of the given depth. The
// leading run (before the first sub-heading) keeps s's own identity — for
// a heading-kind parent this is "preamble-of-refinement", always emitted
// since it carries the parent heading node itself. Each sub-heading
// starts a new segment whose ancestor chain extends s's.
func splitAtLevel(s *segment, source []byte, level int, dedup *slugDeduper) []*segment {
	var out []*segment
	var leadNodes []ast.Node
	var current *segment
	boundarySeen := false

	parentPath := pathJoin(s.AncestorSlugs)
	if s.Kind == "heading" {
		parentPath = pathJoin(append(append([]string{}, s.AncestorSlugs...), s.Slug))
	}

	flushLead := func() {
		if s.Kind == "heading" {
			out = append(out, &segment{
				Kind:          s.Kind,
				HeadingText:   s.HeadingText,
				HeadingLevel:  s.HeadingLevel,
				AncestorTexts: s.AncestorTexts,
				AncestorSlugs: s.AncestorSlugs,
				Slug:          s.Slug,
				Nodes:         leadNodes,
			})
			return
		}
		if len(leadNodes) > 0 && !isBlank(leadNodes, source) {
			out = append(out, &segment{Kind: s.Kind, Nodes: leadNodes})
		}
	}

	for _, n := range s.Nodes {
		h, isHeading := n.(*ast.Heading)
		if isHeading && h.Level == level {
			if current != nil {
				out = append(out, current)
			} else if !boundarySeen {
				flushLead()
			}
			boundarySeen = true

			htext := headingText(h, source)
			slug := dedup.Next(parentPath, slugify(htext))
			ancestorTexts := append([]string{}, s.AncestorTexts...)
			ancestorSlugs := append([]string{}, s.AncestorSlugs...)
			if s.Kind == "heading" {
				ancestorTexts = append(ancestorTexts, s.HeadingText)
				ancestorSlugs = append(ancestorSlugs, s.Slug)
			}
			current = &segment{
				Kind:          "heading",
				HeadingText:   htext,
				HeadingLevel:  level,
				AncestorTexts: ancestorTexts,
				AncestorSlugs: ancestorSlugs,
				Slug:          slug,
				Nodes:         []ast.Node{n},
			}
			continue
		}
		if current != nil {
			current.Nodes = append(current.Nodes, n)
		} else {
			leadNodes = append(leadNodes, n)
		}
	}

	if current != nil {
		out = append(out, current)
	} else if !boundarySeen {
		flushLead()
	}
	return out
}

// packBySize greedily groups s.Nodes into parts whose cumulative raw
// markdown length stays <= max. A single node that alone exceeds max
// forms its own unmolested group.
func packBySize(s *segment, source []byte, max int) []*segment {
	if len(s.Nodes) == 0 {
		return nil
	}
	var groups [][]ast.Node
	var cur []ast.Node
	for _, n := range s.Nodes {
		trial := append(append([]ast.Node{}, cur...), n)
		if len(cur) > 0 && segmentContentLen(trial, source) > max {
			groups = append(groups, cur)
			cur = []ast.Node{n}
			continue
		}
		cur = trial
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	out := make([]*segment, 0, len(groups))
	for i, g := range groups {
		out = append(out, &segment{
			Kind:          s.Kind,
			HeadingText:   s.HeadingText,
			HeadingLevel:  s.HeadingLevel,
			AncestorTexts: s.AncestorTexts,
			AncestorSlugs: s.AncestorSlugs,
			Slug:          s.Slug,
			Nodes:         g,
			Part:          i + 1,
			PartTotal:     len(groups),
		})
	}
	return out
}

func segmentContentLen(nodes []ast.Node, source []byte) int {
	start, end := rangeSpan(nodes)
	if start >= 0 && end >= 0 {
		return len(sourceSlice(source, start, end))
	}
	return len(blockPlainText(nodes, source))
}
